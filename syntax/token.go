package syntax

import "rillc/report"

// Token represents a single lexical token.  Tokens are immutable once
// produced.
type Token struct {
	// The kind of the token.  This must be one of the enumerated token kinds.
	Kind int

	// The string value of the token.  For keywords and operators this is
	// redundant with the kind; for identifiers and literals it carries the
	// literal text (string tokens have the quotes trimmed off).
	Value string

	// The text span over which the token exists.  Positions always refer to
	// offsets in the original input: discarded whitespace and comments do not
	// shift them.
	Span *report.TextSpan
}

// Enumeration of token kinds.  The token codes form a closed, dense table so
// that downstream phases compare small integers instead of keyword spellings.
const (
	TOK_START = iota
	TOK_END

	TOK_FUNC
	TOK_LET
	TOK_RETURN

	TOK_IF
	TOK_THEN
	TOK_ELIF
	TOK_ELSE
	TOK_WHILE
	TOK_DO
	TOK_BREAK
	TOK_CONTINUE
	TOK_BLOCKEND

	TOK_TRY
	TOK_CATCH
	TOK_RETRY

	TOK_LOAD
	TOK_SAVE
	TOK_FILTER
	TOK_GROUPBY
	TOK_AS
	TOK_ARG

	TOK_INT
	TOK_FLOAT
	TOK_BOOL
	TOK_STRING
	TOK_DATASET
	TOK_UNIT

	TOK_AND
	TOK_OR
	TOK_NOT

	TOK_PLUS
	TOK_MINUS
	TOK_STAR
	TOK_DIV
	TOK_MOD

	TOK_EQ
	TOK_NEQ
	TOK_LT
	TOK_GT
	TOK_LTEQ
	TOK_GTEQ

	TOK_ASSIGN
	TOK_PIPE

	TOK_LPAREN
	TOK_RPAREN
	TOK_LBRACKET
	TOK_RBRACKET
	TOK_LBRACE
	TOK_RBRACE
	TOK_COMMA
	TOK_COLON
	TOK_SEMI

	TOK_IDENT
	TOK_INTLIT
	TOK_FLOATLIT
	TOK_STRINGLIT
	TOK_BOOLLIT

	TOK_EOF
)

// tokenNames maps token kinds to display names for diagnostics.
var tokenNames = map[int]string{
	TOK_START:     "Start",
	TOK_END:       "End",
	TOK_FUNC:      "func",
	TOK_LET:       "let",
	TOK_RETURN:    "return",
	TOK_IF:        "if",
	TOK_THEN:      "then",
	TOK_ELIF:      "elif",
	TOK_ELSE:      "else",
	TOK_WHILE:     "while",
	TOK_DO:        "do",
	TOK_BREAK:     "break",
	TOK_CONTINUE:  "continue",
	TOK_BLOCKEND:  "end",
	TOK_TRY:       "try",
	TOK_CATCH:     "catch",
	TOK_RETRY:     "retry",
	TOK_LOAD:      "load",
	TOK_SAVE:      "save",
	TOK_FILTER:    "filter",
	TOK_GROUPBY:   "groupby",
	TOK_AS:        "as",
	TOK_ARG:       "arg",
	TOK_INT:       "int",
	TOK_FLOAT:     "float",
	TOK_BOOL:      "bool",
	TOK_STRING:    "string",
	TOK_DATASET:   "dataset",
	TOK_UNIT:      "unit",
	TOK_AND:       "and",
	TOK_OR:        "or",
	TOK_NOT:       "not",
	TOK_PLUS:      "+",
	TOK_MINUS:     "-",
	TOK_STAR:      "*",
	TOK_DIV:       "/",
	TOK_MOD:       "%",
	TOK_EQ:        "==",
	TOK_NEQ:       "!=",
	TOK_LT:        "<",
	TOK_GT:        ">",
	TOK_LTEQ:      "<=",
	TOK_GTEQ:      ">=",
	TOK_ASSIGN:    "=",
	TOK_PIPE:      "|>",
	TOK_LPAREN:    "(",
	TOK_RPAREN:    ")",
	TOK_LBRACKET:  "[",
	TOK_RBRACKET:  "]",
	TOK_LBRACE:    "{",
	TOK_RBRACE:    "}",
	TOK_COMMA:     ",",
	TOK_COLON:     ":",
	TOK_SEMI:      ";",
	TOK_IDENT:     "identifier",
	TOK_INTLIT:    "integer literal",
	TOK_FLOATLIT:  "float literal",
	TOK_STRINGLIT: "string literal",
	TOK_BOOLLIT:   "boolean literal",
	TOK_EOF:       "end of file",
}

// TokenName returns the display name for a token kind.
func TokenName(kind int) string {
	return tokenNames[kind]
}
