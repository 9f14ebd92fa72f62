package report

// TextSpan represents a range or "span" of source text.  It is used to mark
// erroneous or otherwise significant source text in a Rill program.  Spans are
// inclusive on both sides.  Line and column numbers are zero-indexed; the
// offsets are byte offsets into the original input and are unaffected by
// discarded whitespace and comments.
type TextSpan struct {
	// The line and column beginning the text span.
	StartLine, StartCol int

	// The line and column ending the text span.
	EndLine, EndCol int

	// The byte offsets of the first and last character of the span in the
	// original input.
	StartOffset, EndOffset int
}

// NewSpanOver returns a new text span which spans over and between the two
// given text spans.
func NewSpanOver(start, end *TextSpan) *TextSpan {
	return &TextSpan{
		StartLine:   start.StartLine,
		StartCol:    start.StartCol,
		EndLine:     end.EndLine,
		EndCol:      end.EndCol,
		StartOffset: start.StartOffset,
		EndOffset:   end.EndOffset,
	}
}
