package syntax

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/report"
)

// lexAll tokenizes a source string to completion, excluding the EOF token.
func lexAll(t *testing.T, src string) []*Token {
	t.Helper()

	lexer := NewLexer(src)

	var toks []*Token
	for {
		tok := lexer.NextToken()
		if tok.Kind == TOK_EOF {
			return toks
		}

		toks = append(toks, tok)
	}
}

type tokVal struct {
	Kind  int
	Value string
}

func kindsOf(toks []*Token) []tokVal {
	out := make([]tokVal, len(toks))
	for i, tok := range toks {
		out[i] = tokVal{Kind: tok.Kind, Value: tok.Value}
	}

	return out
}

func TestLexKeywordsAndOperators(t *testing.T) {
	toks := lexAll(t, `let total = base + 3 * 0`)

	want := []tokVal{
		{TOK_LET, "let"},
		{TOK_IDENT, "total"},
		{TOK_ASSIGN, "="},
		{TOK_IDENT, "base"},
		{TOK_PLUS, "+"},
		{TOK_INTLIT, "3"},
		{TOK_STAR, "*"},
		{TOK_INTLIT, "0"},
	}
	if diff := cmp.Diff(want, kindsOf(toks)); diff != "" {
		t.Fatalf("unexpected token stream (-want +got):\n%s", diff)
	}
}

func TestLexPipelineStages(t *testing.T) {
	toks := lexAll(t, `load "s3://events" as "csv" |> filter arg "threshold" |> groupby "region"`)

	want := []tokVal{
		{TOK_LOAD, "load"},
		{TOK_STRINGLIT, "s3://events"},
		{TOK_AS, "as"},
		{TOK_STRINGLIT, "csv"},
		{TOK_PIPE, "|>"},
		{TOK_FILTER, "filter"},
		{TOK_ARG, "arg"},
		{TOK_STRINGLIT, "threshold"},
		{TOK_PIPE, "|>"},
		{TOK_GROUPBY, "groupby"},
		{TOK_STRINGLIT, "region"},
	}
	if diff := cmp.Diff(want, kindsOf(toks)); diff != "" {
		t.Fatalf("unexpected token stream (-want +got):\n%s", diff)
	}
}

func TestLexCommentsAndSpans(t *testing.T) {
	toks := lexAll(t, "# a comment line\nlet x = 1 # trailing\nx")

	require.Len(t, toks, 5)

	// The comment does not produce a token but still advances positions.
	assert.Equal(t, TOK_LET, toks[0].Kind)
	assert.Equal(t, 1, toks[0].Span.StartLine)
	assert.Equal(t, 0, toks[0].Span.StartCol)

	assert.Equal(t, TOK_IDENT, toks[4].Kind)
	assert.Equal(t, 2, toks[4].Span.StartLine)
}

func TestLexStringEscapes(t *testing.T) {
	toks := lexAll(t, `"line\nbreak\t\"quoted\"\\"`)

	require.Len(t, toks, 1)
	assert.Equal(t, TOK_STRINGLIT, toks[0].Kind)
	assert.Equal(t, "line\nbreak\t\"quoted\"\\", toks[0].Value)
}

func TestLexFloatAndIntLiterals(t *testing.T) {
	toks := lexAll(t, `12 12.5 0.25`)

	want := []tokVal{
		{TOK_INTLIT, "12"},
		{TOK_FLOATLIT, "12.5"},
		{TOK_FLOATLIT, "0.25"},
	}
	if diff := cmp.Diff(want, kindsOf(toks)); diff != "" {
		t.Fatalf("unexpected token stream (-want +got):\n%s", diff)
	}
}

func TestLexUnexpectedByte(t *testing.T) {
	var caught *report.Diagnostic

	func() {
		defer report.CatchErrors("test", func(diag *report.Diagnostic) {
			caught = diag
		})

		lexAll(t, "let x = 1 ?")
	}()

	require.NotNil(t, caught)
	assert.Equal(t, report.PhaseLex, caught.Phase)
	assert.Equal(t, report.KindUnexpectedByte, caught.Kind)
}
