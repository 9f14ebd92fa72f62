package report

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatchErrorsTagsUnit(t *testing.T) {
	var caught *Diagnostic

	func() {
		defer CatchErrors("main.rill", func(diag *Diagnostic) {
			caught = diag
		})

		Raise(PhaseParse, KindUnexpectedToken, &TextSpan{StartLine: 2, StartCol: 4}, "unexpected `%s`", "end")
	}()

	require.NotNil(t, caught)
	assert.Equal(t, "main.rill", caught.Unit)
	assert.Equal(t, PhaseParse, caught.Phase)
	assert.Equal(t, KindUnexpectedToken, caught.Kind)
	assert.Equal(t, "unexpected `end`", caught.Message)
	assert.Equal(t, "main.rill:3:5: parse error: unexpected `end`", caught.Error())
}

func TestCatchErrorsRethrowsForeignPanics(t *testing.T) {
	defer func() {
		assert.Equal(t, "not a diagnostic", recover())
	}()

	defer CatchErrors("test", func(*Diagnostic) {
		t.Fatal("collector must not see foreign panics")
	})

	panic("not a diagnostic")
}

func TestKindOfUnwraps(t *testing.T) {
	fault := Fault(KindOutOfMemory, "dataset memory exhausted")
	wrapped := errors.Wrap(fault, "invoking main")

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindOutOfMemory, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestFaultHasNoSpan(t *testing.T) {
	fault := Fault(KindStaleReference, "handle refers to a reclaimed dataset")
	fault.Unit = "main"

	assert.Nil(t, fault.Span)
	assert.Equal(t, -1, fault.Block)
	assert.Equal(t, PhaseRuntime, fault.Phase)
	assert.Equal(t, "main: runtime error: handle refers to a reclaimed dataset", fault.Error())
}

func TestReporterCollectsAndCounts(t *testing.T) {
	r := NewReporter(LogLevelSilent)
	assert.False(t, r.AnyErrors())

	r.Report(&Diagnostic{Phase: PhaseSem, Kind: KindTypeMismatch, Message: "warn", IsWarning: true})
	assert.False(t, r.AnyErrors())

	r.Report(&Diagnostic{Phase: PhaseSem, Kind: KindTypeMismatch, Message: "err"})
	assert.True(t, r.AnyErrors())
	assert.Len(t, r.Diagnostics(), 2)
}
