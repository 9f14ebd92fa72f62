package syntax

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"rillc/report"
)

// Lexer is responsible for tokenizing a source text.  Tokens are produced
// lazily, one NextToken call at a time, and the sequence is restartable: a new
// lexer over the same input yields identical tokens with identical spans.
type Lexer struct {
	src     string
	tokBuff strings.Builder

	pos                 int
	line, col           int
	startLine, startCol int
	startPos            int
}

// NewLexer creates a new lexer for the given source text.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// NextToken retrieves the next token from the input.  If the input has ended,
// this will be an EOF token.  Unexpected bytes raise a lex diagnostic.
func (l *Lexer) NextToken() *Token {
	for {
		c := l.peek()
		if c == -1 {
			break
		}

		switch c {
		case '\n', '\t', ' ', '\r', '\v', '\f':
			l.skip()
		case '#':
			l.skipLineComment()
		case '"':
			return l.lexStringLit()
		default:
			if isDecimalDigit(c) {
				return l.lexNumericLit()
			} else if isFirstIdentChar(c) {
				return l.lexIdentOrKeyword()
			} else {
				return l.lexPunctOrOper()
			}
		}
	}

	l.mark()
	return l.makeToken(TOK_EOF)
}

// -----------------------------------------------------------------------------

// symbolPatterns maps symbol strings (patterns) to their punctuation/operator
// token kind.
var symbolPatterns = map[string]int{
	"+": TOK_PLUS,
	"-": TOK_MINUS,
	"*": TOK_STAR,
	"/": TOK_DIV,
	"%": TOK_MOD,

	"==": TOK_EQ,
	"!=": TOK_NEQ,
	"<":  TOK_LT,
	"<=": TOK_LTEQ,
	">":  TOK_GT,
	">=": TOK_GTEQ,

	"=":  TOK_ASSIGN,
	"|>": TOK_PIPE,

	"(": TOK_LPAREN,
	")": TOK_RPAREN,
	"[": TOK_LBRACKET,
	"]": TOK_RBRACKET,
	"{": TOK_LBRACE,
	"}": TOK_RBRACE,
	",": TOK_COMMA,
	":": TOK_COLON,
	";": TOK_SEMI,
}

// lexPunctOrOper lexes a punctuation or operator symbol.
func (l *Lexer) lexPunctOrOper() *Token {
	l.mark()
	c := l.eat()

	kind, ok := symbolPatterns[l.tokBuff.String()]
	if !ok && c != '|' {
		report.Raise(report.PhaseLex, report.KindUnexpectedByte, l.getSpan(), "unexpected byte `%c`", c)
	}

	for {
		c := l.peek()
		if c == -1 {
			break
		}

		if _kind, ok2 := symbolPatterns[l.tokBuff.String()+string(c)]; ok2 {
			l.eat()
			kind, ok = _kind, true
		} else {
			break
		}
	}

	// `|` on its own is not a symbol: only `|>` is.
	if !ok {
		report.Raise(report.PhaseLex, report.KindUnexpectedByte, l.getSpan(), "unexpected byte `%c`", c)
	}

	return l.makeToken(kind)
}

// -----------------------------------------------------------------------------

// keywordPatterns maps keyword strings (patterns) to their keyword token kind.
var keywordPatterns = map[string]int{
	"Start": TOK_START,
	"End":   TOK_END,

	"func":   TOK_FUNC,
	"let":    TOK_LET,
	"return": TOK_RETURN,

	"if":       TOK_IF,
	"then":     TOK_THEN,
	"elif":     TOK_ELIF,
	"else":     TOK_ELSE,
	"while":    TOK_WHILE,
	"do":       TOK_DO,
	"break":    TOK_BREAK,
	"continue": TOK_CONTINUE,
	"end":      TOK_BLOCKEND,

	"try":   TOK_TRY,
	"catch": TOK_CATCH,
	"retry": TOK_RETRY,

	"load":    TOK_LOAD,
	"save":    TOK_SAVE,
	"filter":  TOK_FILTER,
	"groupby": TOK_GROUPBY,
	"as":      TOK_AS,
	"arg":     TOK_ARG,

	"int":     TOK_INT,
	"float":   TOK_FLOAT,
	"bool":    TOK_BOOL,
	"string":  TOK_STRING,
	"dataset": TOK_DATASET,
	"unit":    TOK_UNIT,

	"and": TOK_AND,
	"or":  TOK_OR,
	"not": TOK_NOT,

	"true":  TOK_BOOLLIT,
	"false": TOK_BOOLLIT,
}

// lexIdentOrKeyword lexes an identifier or a keyword.
func (l *Lexer) lexIdentOrKeyword() *Token {
	l.mark()
	l.eat()

	for {
		c := l.peek()
		if !isFirstIdentChar(c) && !isDecimalDigit(c) {
			break
		}

		l.eat()
	}

	kind := TOK_IDENT
	if _kind, ok := keywordPatterns[l.tokBuff.String()]; ok {
		kind = _kind
	}

	return l.makeToken(kind)
}

// -----------------------------------------------------------------------------

// lexNumericLit lexes an integer or float literal.
func (l *Lexer) lexNumericLit() *Token {
	l.mark()
	l.eat()

	isFloat := false
	hasExp := false
	expectNeg := false
	mustHaveDigit := false

numLexLoop:
	for {
		c := l.peek()

		switch {
		case c == '_':
			// Skip all _ that occur in the literal.
			l.skip()
			continue
		case c == '.':
			if mustHaveDigit || isFloat {
				break numLexLoop
			}

			l.eat()
			isFloat = true
			mustHaveDigit = true
			continue
		case c == 'e' || c == 'E':
			if mustHaveDigit || hasExp {
				break numLexLoop
			}

			l.eat()
			isFloat = true
			hasExp = true
			expectNeg = true
			mustHaveDigit = true
			continue
		case c == '-':
			if mustHaveDigit || !expectNeg {
				break numLexLoop
			}

			l.eat()
			expectNeg = false
			continue
		case isDecimalDigit(c):
			l.eat()
			expectNeg = false
		default:
			break numLexLoop
		}

		mustHaveDigit = false
	}

	if mustHaveDigit {
		report.Raise(report.PhaseLex, report.KindUnexpectedByte, l.getSpan(), "incomplete numeric literal")
	}

	if isFloat {
		return l.makeToken(TOK_FLOATLIT)
	}

	return l.makeToken(TOK_INTLIT)
}

// -----------------------------------------------------------------------------

// lexStringLit lexes a string literal.  The quotes are trimmed from the token
// value but included in its span.
func (l *Lexer) lexStringLit() *Token {
	l.mark()
	l.skip()

	for {
		switch c := l.peek(); c {
		case -1:
			report.Raise(report.PhaseLex, report.KindUnexpectedByte, l.getSpan(), "unclosed string literal")
		case '"':
			l.skip()
			return l.makeToken(TOK_STRINGLIT)
		case '\n':
			report.Raise(report.PhaseLex, report.KindUnexpectedByte, l.getSpan(), "string cannot contain a newline")
		case '\\':
			l.skip()

			switch esc := l.peek(); esc {
			case 'n':
				l.tokBuff.WriteRune('\n')
			case 't':
				l.tokBuff.WriteRune('\t')
			case '"', '\\':
				l.tokBuff.WriteRune(esc)
			default:
				report.Raise(report.PhaseLex, report.KindUnexpectedByte, l.getSpan(), "unknown escape sequence: `\\%c`", esc)
			}

			l.skip()
		default:
			l.eat()
		}
	}
}

// skipLineComment skips a `#` comment through the end of the line.  Skipped
// bytes still advance reported positions.
func (l *Lexer) skipLineComment() {
	for c := l.peek(); c != '\n' && c != -1; c = l.peek() {
		l.skip()
	}
}

// -----------------------------------------------------------------------------

// mark sets the lexer's stored start position to its current position.
func (l *Lexer) mark() {
	l.startLine = l.line
	l.startCol = l.col
	l.startPos = l.pos
}

// makeToken produces a new token of the given kind from the lexer's state and
// resets the lexer to begin building the next token.
func (l *Lexer) makeToken(kind int) *Token {
	value := l.tokBuff.String()
	l.tokBuff.Reset()

	if kind != TOK_IDENT && kind != TOK_INTLIT && kind != TOK_FLOATLIT &&
		kind != TOK_STRINGLIT && kind != TOK_BOOLLIT && kind != TOK_EOF {
		// Keyword and operator tokens carry their spelling for display only;
		// downstream comparisons use the dense kind code.
		value = tokenNames[kind]
	}

	return &Token{
		Kind:  kind,
		Value: value,
		Span:  l.getSpan(),
	}
}

// getSpan calculates a text span based on the lexer's current state.
func (l *Lexer) getSpan() *report.TextSpan {
	return &report.TextSpan{
		StartLine:   l.startLine,
		StartCol:    l.startCol,
		EndLine:     l.line,
		EndCol:      l.col,
		StartOffset: l.startPos,
		EndOffset:   l.pos,
	}
}

// -----------------------------------------------------------------------------

// eat moves the lexer forward one rune and writes the rune to the token
// buffer.  At the end of input, -1 is returned as the rune value.
func (l *Lexer) eat() rune {
	c := l.peek()
	if c == -1 {
		return -1
	}

	l.advance(c)
	l.tokBuff.WriteRune(c)

	return c
}

// skip moves the lexer forward one rune but does not write the rune to the
// token buffer.
func (l *Lexer) skip() rune {
	c := l.peek()
	if c == -1 {
		return -1
	}

	l.advance(c)

	return c
}

// peek returns the next rune in the input without moving the lexer forward.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return -1
	}

	c, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return c
}

// advance updates the lexer's position based on the input character.
func (l *Lexer) advance(c rune) {
	l.pos += utf8.RuneLen(c)

	if c == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// -----------------------------------------------------------------------------

// isDecimalDigit returns whether c is a decimal digit.
func isDecimalDigit(c rune) bool {
	return '0' <= c && c <= '9'
}

// isFirstIdentChar returns whether c could be the first rune of an identifier.
func isFirstIdentChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}
