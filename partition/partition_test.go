package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/lower"
	"rillc/mir"
	"rillc/opt"
	"rillc/report"
	"rillc/syntax"
	"rillc/walk"
)

// compileMain runs a source string through the frontend and optimizer,
// returning the entry function.
func compileMain(t *testing.T, src string) *mir.Func {
	t.Helper()

	var main *mir.Func
	var caught *report.Diagnostic

	func() {
		defer report.CatchErrors("test", func(diag *report.Diagnostic) {
			caught = diag
		})

		prog := syntax.NewParser("test", src).Parse()
		walk.WalkProgram(prog)
		bundle := lower.Lower(prog)
		main = bundle.Main
		opt.NewOptimizer().Optimize(main)
	}()

	if caught != nil {
		t.Fatalf("unexpected diagnostic: %s", caught.Message)
	}

	return main
}

func TestPartitionAllConstant(t *testing.T) {
	main := compileMain(t, `
Start
    let x = 2 + 3
    let y = x * 4
End
`)

	result := Partition(main)
	assert.Equal(t, AOT, result.Class)
	assert.False(t, result.Split())

	for _, block := range main.Blocks {
		assert.Equal(t, AOT, result.Blocks[block])
	}
}

func TestPartitionArgDrivenEntry(t *testing.T) {
	// The runtime lookup is the first real instruction: nothing precedes it,
	// so there is no prefix worth keeping.
	main := compileMain(t, "Start\nlet x = arg \"n\" + 1\nEnd")

	result := Partition(main)
	assert.Equal(t, JIT, result.Class)
	assert.False(t, result.Split())
}

func TestPartitionMidBlockSplit(t *testing.T) {
	main := compileMain(t, `
Start
    let base = 10
    let d = load "events" as "csv" |> filter arg "threshold" |> save "out" as "csv"
End
`)

	blocksBefore := len(main.Blocks)
	result := Partition(main)

	require.Equal(t, JIT, result.Class)
	require.True(t, result.Split())

	// The cut fell mid-block: partitioning materialized it as a real block
	// boundary, so the function gained a block.
	assert.Equal(t, blocksBefore+1, len(main.Blocks))

	// The prefix keeps the constant work and the load; the lookup and
	// everything after it lands in the suffix.
	sawBoundary := false
	for _, block := range main.Blocks {
		if block == result.Boundary {
			sawBoundary = true
		}

		want := AOT
		if sawBoundary {
			want = JIT
		}
		assert.Equal(t, want, result.Blocks[block])
	}
	require.True(t, sawBoundary)

	for _, instr := range result.Boundary.Instrs {
		if instr.Op == mir.OpLoad {
			t.Fatal("load should stay in the AOT prefix")
		}
	}

	hasLoad := false
	for _, block := range main.Blocks {
		if result.Blocks[block] != AOT {
			continue
		}

		for _, instr := range block.Instrs {
			assert.NotEqual(t, mir.OpArgLookup, instr.Op, "lookup classified AOT")
			if instr.Op == mir.OpLoad {
				hasLoad = true
			}
		}
	}
	assert.True(t, hasLoad, "load should be in the prefix")
}

func TestPartitionDeterministic(t *testing.T) {
	src := "Start\nlet base = 10\nlet x = base + arg \"n\"\nEnd"

	first := compileMain(t, src)
	second := compileMain(t, src)

	r1 := Partition(first)
	r2 := Partition(second)

	assert.Equal(t, r1.Class, r2.Class)
	assert.Equal(t, r1.Split(), r2.Split())
	if r1.Split() {
		assert.Equal(t, r1.Boundary.ID, r2.Boundary.ID)
	}
}

func TestSplitBlockRewiring(t *testing.T) {
	main := compileMain(t, "Start\nlet base = 10\nlet x = base + arg \"n\"\nEnd")

	Partition(main)

	// Every block ends in a terminator and every branch target still lives
	// in the block list.
	inList := make(map[*mir.Block]bool)
	for _, block := range main.Blocks {
		inList[block] = true
	}

	for _, block := range main.Blocks {
		require.NotNil(t, block.Term, "block %s lost its terminator", block.Repr())
		for _, succ := range block.Successors() {
			assert.True(t, inList[succ], "dangling successor %s", succ.Repr())
		}

		for _, instr := range block.Instrs {
			assert.Same(t, block, instr.Block)
		}
		assert.Same(t, block, block.Term.Block)
	}
}

func TestPartitionFaultEdgeIntoPrefixForcesWholeJit(t *testing.T) {
	// A suffix block whose fault handler lives in the prefix cannot be split
	// off: a runtime fault would transfer into already-executed code.
	main := compileMain(t, `
Start
    let total = 0
    try
        let d = load "big" as "csv" |> filter arg "t" |> save "out" as "csv"
    catch
        total = 1
    end
End
`)

	result := Partition(main)
	require.Equal(t, JIT, result.Class)

	if result.Split() {
		// If a legal boundary was found, no suffix fallback may point into
		// the prefix.
		sawBoundary := false
		for _, block := range main.Blocks {
			if block == result.Boundary {
				sawBoundary = true
			}

			if sawBoundary && block.Fallback != nil {
				assert.Equal(t, JIT, result.Blocks[block.Fallback])
			}
		}
	}
}

// -----------------------------------------------------------------------------

func TestStaticSlotRetraction(t *testing.T) {
	// A slot written a runtime value anywhere is non-static everywhere, even
	// at reads that happen before the dynamic store.
	main := compileMain(t, `
Start
    let x = 1
    let y = x + 1
    x = arg "n"
    let z = x + 1
End
`)

	result := Partition(main)
	assert.Equal(t, JIT, result.Class)
	assert.False(t, result.Split(), "reads of a dynamic slot cannot anchor a prefix")
}
