package codegen

import (
	"fmt"

	"rillc/mir"
	"rillc/partition"
	"rillc/report"
	"rillc/runtime/memory"
)

// Generator produces bytecode for a whole bundle.  Functions classified AOT
// are fully generated; JIT functions and JIT suffixes are stubbed with region
// entries deferred to the runtime driver.
type Generator struct {
	bundle *mir.Bundle
	parts  map[string]*partition.Result
	prog   *Program
}

// NewGenerator creates a generator over a bundle and its partitioning.
func NewGenerator(bundle *mir.Bundle, parts map[string]*partition.Result) *Generator {
	return &Generator{
		bundle: bundle,
		parts:  parts,
		prog: &Program{
			Name:  bundle.Name,
			Funcs: make(map[string]*FuncCode),
		},
	}
}

// Generate produces the bytecode program.
func (g *Generator) Generate() *Program {
	for name, fn := range g.bundle.Funcs {
		g.prog.Funcs[name] = g.generateFunc(fn, g.parts[name])
	}

	g.prog.Main = g.prog.Funcs[g.bundle.Main.Name]
	return g.prog
}

// -----------------------------------------------------------------------------

// branchFixup is a code offset whose immediate must be patched to the final
// offset of a target block.
type branchFixup struct {
	pos    int
	target *mir.Block
}

// funcGen is the per-function generation state.
type funcGen struct {
	prog *Program
	fn   *mir.Func
	part *partition.Result
	fc   *FuncCode

	// args carries the runtime arguments a region specialization was
	// requested against.  Nil outside specialized region generation.
	args map[string]memory.Value

	constIdx map[Const]int
	callIdx  map[CallSite]int

	blockOffsets map[*mir.Block]int
	fixups       []branchFixup
	faultBlocks  []faultBlock
}

type faultBlock struct {
	start, end int
	handler    *mir.Block
}

func (g *Generator) generateFunc(fn *mir.Func, part *partition.Result) *FuncCode {
	fg := newFuncGen(g.prog, fn, part)
	fg.generate()
	return fg.fc
}

func newFuncGen(prog *Program, fn *mir.Func, part *partition.Result) *funcGen {
	return &funcGen{
		prog: prog,
		fn:   fn,
		part: part,
		fc: &FuncCode{
			Name:      fn.Name,
			Arity:     len(fn.ParamTypes),
			UserSlots: fn.NumSlots,
			// Every IR value has a fixed temporary slot above the user frame
			// slots, keyed by its value ID.  The layout is derivable from the
			// IR alone, so it doubles as the calling convention across region
			// boundaries.
			NumSlots: fn.NumSlots + fn.NumValues(),
		},
		constIdx:     make(map[Const]int),
		callIdx:      make(map[CallSite]int),
		blockOffsets: make(map[*mir.Block]int),
	}
}

func (fg *funcGen) generate() {
	// Arguments arrive on the operand stack; pop them into their temporaries
	// in reverse so the first argument lands in the first one.  Parameter
	// values are created first during lowering, so their IDs line up with
	// their positions.
	for i := fg.fc.Arity - 1; i >= 0; i-- {
		fg.emit(BCSlotSet, fg.fc.UserSlots+i)
	}

	if fg.part.Class == partition.JIT && !fg.part.Split() {
		fg.emitRegionEntry(fg.fn.Entry())
	} else {
		for _, block := range fg.fn.Blocks {
			if fg.part.Blocks[block] == partition.JIT && block != fg.part.Boundary {
				continue
			}

			fg.generateBlock(block)
		}
	}

	fg.patchBranches()
	fg.buildFaultTable()
}

// GenerateRegion generates standalone code for the suffix of a function
// starting at the given block.  The code runs over an already populated frame
// and shares the function's slot layout, so values computed before the
// boundary stay addressable.
func GenerateRegion(fn *mir.Func, boundary *mir.Block, part *partition.Result) *FuncCode {
	return GenerateSpecializedRegion(fn, boundary, part, nil)
}

// GenerateSpecializedRegion generates region code specialized against the
// runtime arguments observed at entry: argument lookups with a known scalar
// value compile to constants.  The result is only valid for invocations
// whose arguments match, which is what the driver's specialization key
// guarantees.
func GenerateSpecializedRegion(fn *mir.Func, boundary *mir.Block, part *partition.Result, args map[string]memory.Value) *FuncCode {
	fg := newFuncGen(nil, fn, part)
	fg.args = args
	fg.fc.Name = fmt.Sprintf("%s.b%d", fn.Name, boundary.ID)

	emit := false
	for _, block := range fn.Blocks {
		if block == boundary {
			emit = true
		}

		if emit {
			fg.generateSuffixBlock(block)
		}
	}

	fg.patchBranches()
	fg.buildFaultTable()
	return fg.fc
}

// generateSuffixBlock is generateBlock without the boundary stub handling:
// inside a region the boundary block gets a real body.
func (fg *funcGen) generateSuffixBlock(block *mir.Block) {
	start := len(fg.fc.Code)
	fg.blockOffsets[block] = start

	for _, instr := range block.Instrs {
		fg.generateInstr(instr)
	}

	fg.generateTerm(block.Term)
	fg.closeBlock(block, start)
}

func (fg *funcGen) generateBlock(block *mir.Block) {
	start := len(fg.fc.Code)
	fg.blockOffsets[block] = start

	if block == fg.part.Boundary {
		fg.emitRegionEntry(block)
		return
	}

	for _, instr := range block.Instrs {
		fg.generateInstr(instr)
	}

	fg.generateTerm(block.Term)
	fg.closeBlock(block, start)
}

// valueConst converts a scalar runtime value to a constant pool entry.
func valueConst(v memory.Value) (Const, bool) {
	switch v.Kind {
	case memory.KindInt:
		return Const{Kind: ConstInt, Int: v.Int}, true
	case memory.KindFloat:
		return Const{Kind: ConstFloat, Float: v.Float}, true
	case memory.KindBool:
		return Const{Kind: ConstBool, Bool: v.Bool}, true
	case memory.KindString:
		return Const{Kind: ConstString, Str: v.Str}, true
	}

	return Const{}, false
}

// closeBlock records the block's code span and fault range once its code has
// been emitted.
func (fg *funcGen) closeBlock(block *mir.Block, start int) {
	fg.fc.Spans = append(fg.fc.Spans, BlockSpan{
		Start: start,
		End:   len(fg.fc.Code),
		Block: block.ID,
	})

	if block.Fallback != nil {
		fg.faultBlocks = append(fg.faultBlocks, faultBlock{
			start:   start,
			end:     len(fg.fc.Code),
			handler: block.Fallback,
		})
	}
}

// emitRegionEntry emits the transfer into a deferred region.  The driver
// executes the region over the live frame and leaves the function result on
// the stack.
func (fg *funcGen) emitRegionEntry(boundary *mir.Block) {
	start := len(fg.fc.Code)
	fg.blockOffsets[boundary] = start

	region := len(fg.prog.Regions)
	fg.prog.Regions = append(fg.prog.Regions, Region{
		Func:     fg.fn.Name,
		Boundary: boundary.ID,
	})

	fg.emit(BCJitEnter, region)
	fg.emit(BCRet, 0)

	fg.fc.Spans = append(fg.fc.Spans, BlockSpan{
		Start: start,
		End:   len(fg.fc.Code),
		Block: boundary.ID,
	})
}

func (fg *funcGen) generateInstr(instr *mir.Instr) {
	switch instr.Op {
	case mir.OpParam:
		// Bound in the prologue.
	case mir.OpSlotGet:
		fg.emit(BCSlotGet, instr.Slot)
		fg.popResult(instr)
	case mir.OpSlotSet:
		fg.pushOperand(instr.Operands[0])
		fg.emit(BCSlotSet, instr.Slot)
	case mir.OpArgLookup:
		// A lookup whose value was observed at specialization time compiles
		// to that value.
		if v, ok := fg.args[instr.Sym]; ok {
			if c, scalar := valueConst(v); scalar {
				fg.emit(BCConst, fg.constOf(c))
				fg.popResult(instr)
				break
			}
		}

		fg.emit(BCArg, fg.constOf(Const{Kind: ConstString, Str: instr.Sym}))
		fg.popResult(instr)
	case mir.OpCall:
		for _, operand := range instr.Operands {
			fg.pushOperand(operand)
		}

		fg.emit(BCCall, fg.callOf(CallSite{Callee: instr.Sym, Arity: len(instr.Operands)}))
		fg.popResult(instr)
	case mir.OpNeg, mir.OpNot:
		fg.pushOperand(instr.Operands[0])
		fg.emit(unaryOpcodes[instr.Op], 0)
		fg.popResult(instr)
	case mir.OpMakeList:
		for _, operand := range instr.Operands {
			fg.pushOperand(operand)
		}

		fg.emit(BCMakeList, len(instr.Operands))
		fg.popResult(instr)
	case mir.OpMakeMap:
		for _, operand := range instr.Operands {
			fg.pushOperand(operand)
		}

		fg.emit(BCMakeMap, len(instr.Operands)/2)
		fg.popResult(instr)
	case mir.OpLoad:
		fg.pushOperand(instr.Operands[0])
		fg.pushOperand(instr.Operands[1])
		fg.emit(BCLoad, 0)
		fg.popResult(instr)
	case mir.OpSave:
		fg.pushOperand(instr.Operands[0])
		fg.pushOperand(instr.Operands[1])
		fg.pushOperand(instr.Operands[2])
		fg.emit(BCSave, 0)
		fg.popResult(instr)
	case mir.OpFilter, mir.OpGroupBy:
		fg.pushOperand(instr.Operands[0])
		fg.pushOperand(instr.Operands[1])

		if instr.Op == mir.OpFilter {
			fg.emit(BCFilter, 0)
		} else {
			fg.emit(BCGroupBy, 0)
		}

		fg.popResult(instr)
	default:
		if opcode, ok := binaryOpcodes[instr.Op]; ok {
			fg.pushOperand(instr.Operands[0])
			fg.pushOperand(instr.Operands[1])
			fg.emit(opcode, 0)
			fg.popResult(instr)
			return
		}

		report.RaiseICE("no bytecode form for instruction: %s", instr.Repr())
	}
}

func (fg *funcGen) generateTerm(term *mir.Instr) {
	switch term.Op {
	case mir.OpBr:
		fg.emitBranch(BCJmp, term.Targets[0])
	case mir.OpCondBr:
		fg.pushOperand(term.Operands[0])
		fg.emitBranch(BCJmpFalse, term.Targets[1])
		fg.emitBranch(BCJmp, term.Targets[0])
	case mir.OpRet:
		if len(term.Operands) == 0 {
			fg.emit(BCConst, fg.constOf(Const{Kind: ConstUnit}))
		} else {
			fg.pushOperand(term.Operands[0])
		}

		fg.emit(BCRet, 0)
	default:
		report.RaiseICE("no bytecode form for terminator: %s", term.Repr())
	}
}

var binaryOpcodes = map[mir.Op]Opcode{
	mir.OpAdd: BCAdd,
	mir.OpSub: BCSub,
	mir.OpMul: BCMul,
	mir.OpDiv: BCDiv,
	mir.OpMod: BCMod,
	mir.OpEq:  BCEq,
	mir.OpNeq: BCNeq,
	mir.OpLt:  BCLt,
	mir.OpGt:  BCGt,
	mir.OpLeq: BCLeq,
	mir.OpGeq: BCGeq,
	mir.OpAnd: BCAnd,
	mir.OpOr:  BCOr,
}

var unaryOpcodes = map[mir.Op]Opcode{
	mir.OpNeg: BCNeg,
	mir.OpNot: BCNot,
}

// -----------------------------------------------------------------------------

func (fg *funcGen) emit(op Opcode, imm int) {
	if imm > MaxImm {
		report.RaiseICE("bytecode immediate overflow in %s", fg.fn.Name)
	}

	fg.fc.Code = append(fg.fc.Code, Encode(op, imm))
}

func (fg *funcGen) emitBranch(op Opcode, target *mir.Block) {
	fg.fixups = append(fg.fixups, branchFixup{pos: len(fg.fc.Code), target: target})
	fg.emit(op, 0)
}

func (fg *funcGen) pushOperand(operand mir.Operand) {
	switch v := operand.(type) {
	case *mir.Value:
		fg.emit(BCSlotGet, fg.slotOf(v))
	case mir.ConstInt:
		fg.emit(BCConst, fg.constOf(Const{Kind: ConstInt, Int: v.Val}))
	case mir.ConstFloat:
		fg.emit(BCConst, fg.constOf(Const{Kind: ConstFloat, Float: v.Val}))
	case mir.ConstBool:
		fg.emit(BCConst, fg.constOf(Const{Kind: ConstBool, Bool: v.Val}))
	case mir.ConstString:
		fg.emit(BCConst, fg.constOf(Const{Kind: ConstString, Str: v.Val}))
	case mir.ConstUnit:
		fg.emit(BCConst, fg.constOf(Const{Kind: ConstUnit}))
	default:
		report.RaiseICE("no bytecode form for operand: %s", operand.Repr())
	}
}

// popResult stores an instruction's result into its temporary slot.
func (fg *funcGen) popResult(instr *mir.Instr) {
	fg.emit(BCSlotSet, fg.slotOf(instr.Result))
}

func (fg *funcGen) slotOf(value *mir.Value) int {
	return fg.fc.UserSlots + value.ID
}

func (fg *funcGen) constOf(c Const) int {
	if idx, ok := fg.constIdx[c]; ok {
		return idx
	}

	idx := len(fg.fc.Consts)
	fg.fc.Consts = append(fg.fc.Consts, c)
	fg.constIdx[c] = idx
	return idx
}

func (fg *funcGen) callOf(site CallSite) int {
	if idx, ok := fg.callIdx[site]; ok {
		return idx
	}

	idx := len(fg.fc.Calls)
	fg.fc.Calls = append(fg.fc.Calls, site)
	fg.callIdx[site] = idx
	return idx
}

func (fg *funcGen) patchBranches() {
	for _, fix := range fg.fixups {
		offset, ok := fg.blockOffsets[fix.target]
		if !ok {
			report.RaiseICE("branch into ungenerated block b%d in %s", fix.target.ID, fg.fn.Name)
		}

		op, _ := Decode(fg.fc.Code[fix.pos])
		fg.fc.Code[fix.pos] = Encode(op, offset)
	}
}

func (fg *funcGen) buildFaultTable() {
	for _, fb := range fg.faultBlocks {
		handler, ok := fg.blockOffsets[fb.handler]
		if !ok {
			report.RaiseICE("fault edge into ungenerated block b%d in %s", fb.handler.ID, fg.fn.Name)
		}

		fg.fc.Faults = append(fg.fc.Faults, FaultRange{
			Start:   fb.start,
			End:     fb.end,
			Handler: handler,
		})
	}
}
