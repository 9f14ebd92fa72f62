package report

import (
	"errors"
	"fmt"
)

// Phase identifies the compiler phase a diagnostic originated from.
type Phase int

// Enumeration of compiler phases.
const (
	PhaseLex Phase = iota
	PhaseParse
	PhaseSem
	PhaseLower
	PhaseOpt
	PhasePartition
	PhaseCodegen
	PhaseRuntime
)

// phaseNames maps phases to their display names.
var phaseNames = []string{
	"lex",
	"parse",
	"semantic",
	"lower",
	"optimize",
	"partition",
	"codegen",
	"runtime",
}

func (p Phase) String() string {
	return phaseNames[p]
}

// Kind classifies a diagnostic within its phase.
type Kind int

// Enumeration of diagnostic kinds.
const (
	// Lexer kinds.
	KindUnexpectedByte Kind = iota

	// Parser kinds.
	KindUnexpectedToken

	// Semantic kinds.
	KindUnresolvedName
	KindTypeMismatch
	KindInvalidPipelineStage

	// Internal kinds: these should never surface to a caller.
	KindOptimizerInvariant

	// Partition kinds: recoverable, the function degrades to JIT-only.
	KindUnclassifiable

	// Runtime kinds.
	KindOutOfMemory
	KindStaleReference
	KindDataFault
	KindJitTimeout
)

// kindNames maps kinds to their display names.
var kindNames = []string{
	"unexpected byte",
	"unexpected token",
	"unresolved name",
	"type mismatch",
	"invalid pipeline stage",
	"optimizer invariant violation",
	"unclassifiable function",
	"out of memory",
	"stale reference",
	"data fault",
	"jit compilation timeout",
}

func (k Kind) String() string {
	return kindNames[k]
}

// -----------------------------------------------------------------------------

// Diagnostic is a structured compilation error or warning.  Every error the
// compiler surfaces to a caller is a diagnostic: there are no free-text-only
// errors.
type Diagnostic struct {
	// The phase the diagnostic originated from.
	Phase Phase

	// The kind of the diagnostic within its phase.
	Kind Kind

	// The span over which the diagnostic occurs.  May be nil for diagnostics
	// with no meaningful source location (eg. runtime faults).
	Span *TextSpan

	// The name of the compilation unit the diagnostic occurred in.
	Unit string

	// The human-readable message.
	Message string

	// Block is the id of the basic block a runtime fault originated in.
	// -1 for compile-phase diagnostics and faults raised outside any block.
	Block int

	// IsWarning indicates the diagnostic does not stop compilation.
	IsWarning bool
}

func (d *Diagnostic) Error() string {
	if d.Span == nil {
		return fmt.Sprintf("%s: %s error: %s", d.Unit, d.Phase, d.Message)
	}

	return fmt.Sprintf(
		"%s:%d:%d: %s error: %s",
		d.Unit, d.Span.StartLine+1, d.Span.StartCol+1, d.Phase, d.Message,
	)
}

// Raise creates a new diagnostic and panics with it.  The panic is expected to
// be caught by a deferred CatchErrors at the phase boundary.
func Raise(phase Phase, kind Kind, span *TextSpan, msg string, args ...interface{}) {
	panic(&Diagnostic{
		Phase:   phase,
		Kind:    kind,
		Span:    span,
		Message: fmt.Sprintf(msg, args...),
		Block:   -1,
	})
}

// RaiseICE reports an internal compiler error.  These result from a bug or an
// unsound rewrite inside the compiler: they are not intended to ever happen
// and are fatal to the whole process of compilation, not just the unit.
func RaiseICE(msg string, args ...interface{}) {
	panic(&Diagnostic{
		Phase:   PhaseOpt,
		Kind:    KindOptimizerInvariant,
		Message: fmt.Sprintf(msg, args...),
		Block:   -1,
	})
}

// Fault creates a runtime diagnostic returned as an ordinary error value
// rather than raised: runtime faults flow through error returns and fault
// handlers, not panics.
func Fault(kind Kind, msg string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Phase:   PhaseRuntime,
		Kind:    kind,
		Message: fmt.Sprintf(msg, args...),
		Block:   -1,
	}
}

// KindOf extracts the diagnostic kind carried by an error, unwrapping as
// needed.
func KindOf(err error) (Kind, bool) {
	var diag *Diagnostic
	if errors.As(err, &diag) {
		return diag.Kind, true
	}

	return 0, false
}

// CatchErrors catches any diagnostics thrown by a `panic` during a phase of
// compilation and hands them to the collector.  In effect, this determines
// where errors "unrecoverable" within a given phase stop bubbling.
// NB: This function must ALWAYS be deferred.
func CatchErrors(unit string, collect func(*Diagnostic)) {
	if x := recover(); x != nil {
		if diag, ok := x.(*Diagnostic); ok {
			diag.Unit = unit
			collect(diag)
		} else {
			panic(x)
		}
	}
}
