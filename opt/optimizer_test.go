package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/lower"
	"rillc/mir"
	"rillc/report"
	"rillc/syntax"
	"rillc/types"
	"rillc/walk"
)

// lowerSource runs a source string through the frontend and returns its MIR
// bundle, failing the test on any diagnostic.
func lowerSource(t *testing.T, src string) *mir.Bundle {
	t.Helper()

	var bundle *mir.Bundle
	var caught *report.Diagnostic

	func() {
		defer report.CatchErrors("test", func(diag *report.Diagnostic) {
			caught = diag
		})

		prog := syntax.NewParser("test", src).Parse()
		walk.WalkProgram(prog)
		bundle = lower.Lower(prog)
	}()

	if caught != nil {
		t.Fatalf("unexpected diagnostic: %s", caught.Message)
	}

	return bundle
}

// countOps counts the instructions of a function with the given op, the
// terminators included.
func countOps(fn *mir.Func, op mir.Op) int {
	n := 0
	fn.Instrs(func(instr *mir.Instr) {
		if instr.Op == op {
			n++
		}
	})

	return n
}

// slotSetOperands collects the operands of every slot store in the function.
func slotSetOperands(fn *mir.Func) []mir.Operand {
	var ops []mir.Operand
	fn.Instrs(func(instr *mir.Instr) {
		if instr.Op == mir.OpSlotSet {
			ops = append(ops, instr.Operands[0])
		}
	})

	return ops
}

func TestFoldConstantExpression(t *testing.T) {
	bundle := lowerSource(t, "Start\nlet x = 2 + 3 * 0\nEnd")
	main := bundle.Main

	passes := NewOptimizer().Optimize(main)
	assert.Greater(t, passes, 0)

	// The whole right-hand side collapses to the constant 2: no arithmetic
	// survives and the store receives the folded constant directly.
	assert.Equal(t, 0, countOps(main, mir.OpMul))
	assert.Equal(t, 0, countOps(main, mir.OpAdd))

	stores := slotSetOperands(main)
	require.Len(t, stores, 1)
	assert.Equal(t, mir.ConstInt{Val: 2}, stores[0])
}

func TestOptimizeReachesFixedPoint(t *testing.T) {
	bundle := lowerSource(t, "Start\nlet x = 2 + 3 * 0\nlet y = x + 0\nEnd")
	main := bundle.Main

	opt := NewOptimizer()
	opt.Optimize(main)

	// A second run finds nothing left to rewrite.
	assert.Equal(t, 0, opt.Optimize(main))
}

func TestDivisionByConstantZeroNotFolded(t *testing.T) {
	bundle := lowerSource(t, "Start\nlet x = 10 / 0\nEnd")
	main := bundle.Main

	NewOptimizer().Optimize(main)

	// The division is left in place to fault at runtime.
	assert.Equal(t, 1, countOps(main, mir.OpDiv))
}

func TestFoldConstantBranch(t *testing.T) {
	bundle := lowerSource(t, `
Start
    let y = 0
    if true then
        y = 1
    else
        y = 2
    end
End
`)
	main := bundle.Main

	NewOptimizer().Optimize(main)

	// The conditional branch folds and the dead else arm is pruned.
	assert.Equal(t, 0, countOps(main, mir.OpCondBr))

	stores := slotSetOperands(main)
	require.Len(t, stores, 2)
	assert.Equal(t, mir.ConstInt{Val: 0}, stores[0])
	assert.Equal(t, mir.ConstInt{Val: 1}, stores[1])
}

func TestArgLookupNeverFolds(t *testing.T) {
	bundle := lowerSource(t, "Start\nlet x = arg \"n\" * 1 + 0\nEnd")
	main := bundle.Main

	NewOptimizer().Optimize(main)

	// The identities around the lookup vanish but the lookup itself stays.
	assert.Equal(t, 1, countOps(main, mir.OpArgLookup))
	assert.Equal(t, 0, countOps(main, mir.OpMul))
	assert.Equal(t, 0, countOps(main, mir.OpAdd))

	stores := slotSetOperands(main)
	require.Len(t, stores, 1)
	value, ok := stores[0].(*mir.Value)
	require.True(t, ok)
	assert.Equal(t, mir.OpArgLookup, value.Def.Op)
}

func TestSideEffectsSurviveSweep(t *testing.T) {
	bundle := lowerSource(t, "Start\nload \"events\" as \"csv\" |> save \"out\" as \"csv\"\nEnd")
	main := bundle.Main

	NewOptimizer().Optimize(main)

	// Dataset operations are externally visible: the sweep never drops them
	// even though their results go unused.
	assert.Equal(t, 1, countOps(main, mir.OpLoad))
	assert.Equal(t, 1, countOps(main, mir.OpSave))
}

// -----------------------------------------------------------------------------

func TestEliminateDuplicates(t *testing.T) {
	fn := mir.NewFunc("f", []types.Type{types.PrimInt}, types.PrimInt)
	entry := fn.Entry()

	param := &mir.Instr{Op: mir.OpParam, Slot: 0}
	param.Result = fn.NewValue(types.PrimInt, param)
	entry.Append(param)

	add1 := &mir.Instr{Op: mir.OpAdd, Operands: []mir.Operand{param.Result, mir.ConstInt{Val: 1}}}
	add1.Result = fn.NewValue(types.PrimInt, add1)
	entry.Append(add1)

	add2 := &mir.Instr{Op: mir.OpAdd, Operands: []mir.Operand{param.Result, mir.ConstInt{Val: 1}}}
	add2.Result = fn.NewValue(types.PrimInt, add2)
	entry.Append(add2)

	mul := &mir.Instr{Op: mir.OpMul, Operands: []mir.Operand{add1.Result, add2.Result}}
	mul.Result = fn.NewValue(types.PrimInt, mul)
	entry.Append(mul)

	entry.SetTerm(&mir.Instr{Op: mir.OpRet, Operands: []mir.Operand{mul.Result}})

	NewOptimizer().Optimize(fn)

	// The second add collapses into the first: both multiply operands end up
	// being the same value.
	assert.Equal(t, 1, countOps(fn, mir.OpAdd))

	var muls []*mir.Instr
	fn.Instrs(func(instr *mir.Instr) {
		if instr.Op == mir.OpMul {
			muls = append(muls, instr)
		}
	})
	require.Len(t, muls, 1)
	assert.Same(t, muls[0].Operands[0].(*mir.Value), muls[0].Operands[1].(*mir.Value))
}

func TestHoistLoopInvariants(t *testing.T) {
	fn := mir.NewFunc("f", nil, types.PrimInt)
	entry := fn.Entry()

	lookup := &mir.Instr{Op: mir.OpArgLookup, Sym: "n"}
	lookup.Result = fn.NewValue(types.PrimInt, lookup)
	entry.Append(lookup)

	header := fn.NewBlock()
	exit := fn.NewBlock()
	entry.SetTerm(&mir.Instr{Op: mir.OpBr, Targets: []*mir.Block{header}})

	// The doubled lookup value never changes across iterations.
	inv := &mir.Instr{Op: mir.OpMul, Operands: []mir.Operand{lookup.Result, mir.ConstInt{Val: 2}}}
	inv.Result = fn.NewValue(types.PrimInt, inv)
	header.Append(inv)

	cond := &mir.Instr{Op: mir.OpLt, Operands: []mir.Operand{inv.Result, mir.ConstInt{Val: 100}}}
	cond.Result = fn.NewValue(types.PrimBool, cond)
	header.Append(cond)

	header.SetTerm(&mir.Instr{Op: mir.OpCondBr, Operands: []mir.Operand{cond.Result}, Targets: []*mir.Block{header, exit}})
	exit.SetTerm(&mir.Instr{Op: mir.OpRet, Operands: []mir.Operand{inv.Result}})

	changed := NewOptimizer().hoistLoopInvariants(fn)
	require.True(t, changed)

	// Both instructions migrate to the preheader; the loop body runs empty.
	assert.Empty(t, header.Instrs)
	assert.Same(t, entry, inv.Block)
	assert.Same(t, entry, cond.Block)
}

func TestHoistSkipsFaultingDivision(t *testing.T) {
	// A division that may fault must stay inside its loop: hoisting it out
	// of a zero-trip loop would fault where the unoptimized program does
	// not.
	cases := []struct {
		name    string
		divisor mir.Operand
		hoisted bool
	}{
		{"constant zero divisor", mir.ConstInt{Val: 0}, false},
		{"nonzero constant divisor", mir.ConstInt{Val: 2}, true},
		{"runtime divisor", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := mir.NewFunc("f", nil, types.PrimInt)
			entry := fn.Entry()

			lookup := &mir.Instr{Op: mir.OpArgLookup, Sym: "n"}
			lookup.Result = fn.NewValue(types.PrimInt, lookup)
			entry.Append(lookup)

			divisor := tc.divisor
			if divisor == nil {
				divisor = lookup.Result
			}

			header := fn.NewBlock()
			exit := fn.NewBlock()
			entry.SetTerm(&mir.Instr{Op: mir.OpBr, Targets: []*mir.Block{header}})

			div := &mir.Instr{Op: mir.OpDiv, Operands: []mir.Operand{mir.ConstInt{Val: 10}, divisor}}
			div.Result = fn.NewValue(types.PrimInt, div)
			header.Append(div)

			cond := &mir.Instr{Op: mir.OpLt, Operands: []mir.Operand{lookup.Result, mir.ConstInt{Val: 100}}}
			cond.Result = fn.NewValue(types.PrimBool, cond)
			header.Append(cond)

			header.SetTerm(&mir.Instr{Op: mir.OpCondBr, Operands: []mir.Operand{cond.Result}, Targets: []*mir.Block{header, exit}})
			exit.SetTerm(&mir.Instr{Op: mir.OpRet, Operands: []mir.Operand{mir.ConstInt{Val: 0}}})

			NewOptimizer().hoistLoopInvariants(fn)

			if tc.hoisted {
				assert.Same(t, entry, div.Block)
			} else {
				assert.Same(t, header, div.Block)
			}
		})
	}
}
