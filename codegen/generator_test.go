package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/lower"
	"rillc/mir"
	"rillc/opt"
	"rillc/partition"
	"rillc/report"
	"rillc/runtime/memory"
	"rillc/syntax"
	"rillc/walk"
)

// compile runs a source string through the full compilation pipeline and
// returns the bundle, its partitioning, and the generated program.
func compile(t *testing.T, src string) (*mir.Bundle, map[string]*partition.Result, *Program) {
	t.Helper()

	var bundle *mir.Bundle
	var prog *Program
	parts := make(map[string]*partition.Result)
	var caught *report.Diagnostic

	func() {
		defer report.CatchErrors("test", func(diag *report.Diagnostic) {
			caught = diag
		})

		unit := syntax.NewParser("test", src).Parse()
		walk.WalkProgram(unit)
		bundle = lower.Lower(unit)

		optimizer := opt.NewOptimizer()
		for name, fn := range bundle.Funcs {
			optimizer.Optimize(fn)
			parts[name] = partition.Partition(fn)
		}

		prog = NewGenerator(bundle, parts).Generate()
	}()

	if caught != nil {
		t.Fatalf("unexpected diagnostic: %s", caught.Message)
	}

	return bundle, parts, prog
}

// opsOf decodes a code array into its opcode sequence.
func opsOf(code []uint32) []Opcode {
	ops := make([]Opcode, len(code))
	for i, word := range code {
		ops[i], _ = Decode(word)
	}

	return ops
}

func countOpcode(code []uint32, want Opcode) int {
	n := 0
	for _, op := range opsOf(code) {
		if op == want {
			n++
		}
	}

	return n
}

func TestEncodeDecode(t *testing.T) {
	word := Encode(BCConst, 42)
	op, imm := Decode(word)
	assert.Equal(t, BCConst, op)
	assert.Equal(t, 42, imm)

	op, imm = Decode(Encode(BCJmp, MaxImm))
	assert.Equal(t, BCJmp, op)
	assert.Equal(t, MaxImm, imm)

	op, imm = Decode(Encode(BCRet, 0))
	assert.Equal(t, BCRet, op)
	assert.Equal(t, 0, imm)
}

func TestGenerateConstProgram(t *testing.T) {
	_, parts, prog := compile(t, "Start\nlet x = 2 + 3 * 0\nEnd")

	require.NotNil(t, prog.Main)
	assert.Equal(t, partition.AOT, parts["main"].Class)
	assert.Empty(t, prog.Regions)
	assert.Equal(t, 0, countOpcode(prog.Main.Code, BCJitEnter))

	// The folded constant lands in the pool; the arithmetic never does.
	assert.Contains(t, prog.Main.Consts, Const{Kind: ConstInt, Int: 2})
	assert.Equal(t, 0, countOpcode(prog.Main.Code, BCAdd))
	assert.Equal(t, 0, countOpcode(prog.Main.Code, BCMul))
}

func TestGenerateArgProgramDefersToRegion(t *testing.T) {
	_, parts, prog := compile(t, "Start\nlet x = arg \"n\" + 1\nEnd")

	require.Equal(t, partition.JIT, parts["main"].Class)
	require.Len(t, prog.Regions, 1)
	assert.Equal(t, "main", prog.Regions[0].Func)
	assert.Equal(t, 1, countOpcode(prog.Main.Code, BCJitEnter))

	// The stub defers everything: no argument lookup in the AOT code.
	assert.Equal(t, 0, countOpcode(prog.Main.Code, BCArg))
}

func TestGenerateSpecializedRegionFoldsArguments(t *testing.T) {
	bundle, parts, _ := compile(t, "Start\nlet x = arg \"n\" + 1\nEnd")
	main := bundle.Funcs["main"]
	part := parts["main"]

	generic := GenerateRegion(main, main.Entry(), part)
	assert.Equal(t, 1, countOpcode(generic.Code, BCArg))

	// Specialized against an observed value, the lookup becomes a constant.
	specialized := GenerateSpecializedRegion(main, main.Entry(), part, map[string]memory.Value{
		"n": memory.IntValue(7),
	})
	assert.Equal(t, 0, countOpcode(specialized.Code, BCArg))
	assert.Contains(t, specialized.Consts, Const{Kind: ConstInt, Int: 7})

	// A handle-valued argument cannot be baked in and stays a lookup.
	withRef := GenerateSpecializedRegion(main, main.Entry(), part, map[string]memory.Value{
		"n": memory.RefValue(memory.Ref{Slot: 1, Gen: 2}),
	})
	assert.Equal(t, 1, countOpcode(withRef.Code, BCArg))
}

func TestGenerateSplitFunction(t *testing.T) {
	bundle, parts, prog := compile(t, `
Start
    let d = load "events" as "csv" |> filter arg "t" |> save "out" as "csv"
End
`)

	require.True(t, parts["main"].Split())
	require.Len(t, prog.Regions, 1)

	// The prefix carries the load; the filter waits behind the region stub.
	assert.Equal(t, 1, countOpcode(prog.Main.Code, BCLoad))
	assert.Equal(t, 0, countOpcode(prog.Main.Code, BCFilter))
	assert.Equal(t, 1, countOpcode(prog.Main.Code, BCJitEnter))

	// The region code picks up exactly where the prefix stopped, over the
	// same frame layout.
	region := GenerateRegion(bundle.Main, parts["main"].Boundary, parts["main"])
	assert.Equal(t, prog.Main.NumSlots, region.NumSlots)
	assert.Equal(t, prog.Main.UserSlots, region.UserSlots)
	assert.Equal(t, 0, countOpcode(region.Code, BCLoad))
	assert.Equal(t, 1, countOpcode(region.Code, BCFilter))
	assert.Equal(t, 1, countOpcode(region.Code, BCSave))
	assert.Equal(t, 1, countOpcode(region.Code, BCArg))
}

func TestGenerateFunctionCall(t *testing.T) {
	bundle, parts, prog := compile(t, `
func add(a: int, b: int): int
    return a + b
end

Start
    let x = add(1, 2)
End
`)

	// A function over parameters depends on runtime values throughout, so it
	// generates as a stub deferring to a region.
	fc, ok := prog.Funcs["add"]
	require.True(t, ok)
	assert.Equal(t, 2, fc.Arity)
	assert.Equal(t, partition.JIT, parts["add"].Class)

	// The prologue pops both arguments into their temporaries before the
	// region transfer.
	ops := opsOf(fc.Code)
	require.GreaterOrEqual(t, len(ops), 3)
	assert.Equal(t, BCSlotSet, ops[0])
	assert.Equal(t, BCSlotSet, ops[1])
	assert.Equal(t, BCJitEnter, ops[2])

	// The region body holds the actual arithmetic, addressed over the same
	// frame the stub populated.
	addFn := bundle.Funcs["add"]
	region := GenerateRegion(addFn, addFn.Entry(), parts["add"])
	assert.Equal(t, fc.NumSlots, region.NumSlots)
	assert.Equal(t, 1, countOpcode(region.Code, BCAdd))

	// The call site itself lives in main's region code.
	mainRegion := GenerateRegion(bundle.Main, bundle.Main.Entry(), parts["main"])
	require.Len(t, mainRegion.Calls, 1)
	assert.Equal(t, CallSite{Callee: "add", Arity: 2}, mainRegion.Calls[0])
}

func TestBranchTargetsInRange(t *testing.T) {
	_, parts, prog := compile(t, `
Start
    let i = 0
    let total = 0
    while i < 3 do
        total = total + i
        i = i + 1
    end
End
`)

	require.Equal(t, partition.AOT, parts["main"].Class)

	sawBack := false
	for pc, word := range prog.Main.Code {
		op, imm := Decode(word)
		if op != BCJmp && op != BCJmpFalse {
			continue
		}

		assert.Less(t, imm, len(prog.Main.Code), "branch at %d out of range", pc)
		if imm <= pc {
			sawBack = true
		}
	}
	assert.True(t, sawBack, "loop should produce a backward branch")
}

func TestFaultRanges(t *testing.T) {
	_, _, prog := compile(t, `
Start
    let x = 0
    try
        x = 10 / 0
    catch
        x = -1
    end
End
`)

	fc := prog.Main
	require.NotEmpty(t, fc.Faults)

	fr := fc.Faults[0]
	assert.Less(t, fr.Start, fr.End)
	assert.Less(t, fr.Handler, len(fc.Code))

	// Offsets inside the guarded range resolve to the handler; offsets
	// outside it do not.
	assert.Equal(t, fr.Handler, fc.Handler(fr.Start))
	assert.Equal(t, fr.Handler, fc.Handler(fr.End-1))
	assert.Equal(t, -1, fc.Handler(len(fc.Code)+1))
}

func TestDisassemble(t *testing.T) {
	_, _, prog := compile(t, "Start\nlet x = 1 + 2\nEnd")

	out := Disassemble(prog)
	assert.Contains(t, out, "program test")
	assert.Contains(t, out, "func main/0")
	assert.Contains(t, out, "const")
	assert.Contains(t, out, "ret")
}

func TestRenderLLVM(t *testing.T) {
	bundle, parts, _ := compile(t, `
Start
    let x = 2 + 3
    let d = load "events" as "csv" |> save "out" as "csv"
End
`)

	out := RenderLLVM(bundle, parts)

	// The fully static entry renders as a real definition calling into the
	// runtime for its dataset operations.
	assert.Contains(t, out, "define void @main")
	assert.Contains(t, out, "rill_load")
	assert.Contains(t, out, "rill_save")
}

func TestRenderLLVMDeclaresJitFunctions(t *testing.T) {
	bundle, parts, _ := compile(t, "Start\nlet x = arg \"n\" + 1\nEnd")

	out := RenderLLVM(bundle, parts)

	// A JIT-classified function gets a declaration only: no body to render.
	assert.Contains(t, out, "@main")
	assert.False(t, strings.Contains(out, "define void @main"),
		"jit function should not get a definition")
}
