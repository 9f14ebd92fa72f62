package lower

import (
	"rillc/ast"
	"rillc/mir"
	"rillc/types"
)

// Lowerer is responsible for lowering a decorated AST into MIR.  Lowering is
// deterministic: one AST node kind maps to a fixed set of instruction kinds,
// and control constructs become basic blocks with explicit branches.
type Lowerer struct {
	// The program being lowered.
	prog *ast.Program

	// The function currently being built.
	fn *mir.Func

	// The block instructions are currently appended to.
	block *mir.Block

	// The SSA operands of immutable symbols (parameters).
	ssaVars map[*ast.Symbol]mir.Operand

	// The fault fallback block new blocks inherit.  Nil outside try bodies.
	fallback *mir.Block

	// The enclosing loop targets for break/continue.
	loops []loopFrame
}

// loopFrame holds the branch targets of one enclosing loop.
type loopFrame struct {
	header *mir.Block
	exit   *mir.Block
}

// Lower lowers a semantically analyzed program into a MIR bundle.
func Lower(prog *ast.Program) *mir.Bundle {
	l := &Lowerer{prog: prog}

	bundle := &mir.Bundle{
		Name:  prog.Name,
		Funcs: make(map[string]*mir.Func),
	}

	for _, fn := range prog.Funcs {
		bundle.Funcs[fn.Name] = l.lowerFuncDef(fn)
	}

	// The entry block lowers to a unit-returning function of no parameters.
	bundle.Main = l.lowerBody("main", nil, types.PrimUnit, prog.Body)
	bundle.Funcs["main"] = bundle.Main

	return bundle
}

// lowerFuncDef lowers a single function definition.
func (l *Lowerer) lowerFuncDef(fn *ast.FuncDef) *mir.Func {
	paramTypes := make([]types.Type, len(fn.Params))
	for i, param := range fn.Params {
		paramTypes[i] = param.Typ
	}

	mirFn := mir.NewFunc(fn.Name, paramTypes, fn.ReturnType)
	l.beginFunc(mirFn)

	// Bind each parameter to a value read from its calling-convention slot.
	for i, param := range fn.Params {
		instr := &mir.Instr{Op: mir.OpParam, Slot: i}
		instr.Result = mirFn.NewValue(param.Typ, instr)
		l.block.Append(instr)

		l.ssaVars[param.Sym] = instr.Result
	}

	l.lowerBlock(fn.Body)
	l.sealFunc()

	return mirFn
}

// lowerBody lowers a bare statement block as a function.
func (l *Lowerer) lowerBody(name string, paramTypes []types.Type, returnType types.Type, body *ast.Block) *mir.Func {
	mirFn := mir.NewFunc(name, paramTypes, returnType)
	l.beginFunc(mirFn)
	l.lowerBlock(body)
	l.sealFunc()

	return mirFn
}

// beginFunc resets the lowerer state for a new function.
func (l *Lowerer) beginFunc(fn *mir.Func) {
	l.fn = fn
	l.block = fn.Entry()
	l.ssaVars = make(map[*ast.Symbol]mir.Operand)
	l.fallback = nil
	l.loops = nil
}

// sealFunc terminates the exit block of the function under construction with
// an implicit return if the source did not end with one.
func (l *Lowerer) sealFunc() {
	if !l.block.Terminated() {
		if types.IsUnit(l.fn.ReturnType) {
			l.block.SetTerm(&mir.Instr{Op: mir.OpRet})
		} else {
			// A value-returning function that falls off its end returns the
			// zero value of its return type.
			l.block.SetTerm(&mir.Instr{
				Op:       mir.OpRet,
				Operands: []mir.Operand{zeroOperand(l.fn.ReturnType)},
			})
		}
	}
}

// -----------------------------------------------------------------------------

// newBlock appends a new block to the current function.  Blocks created
// inside a try body inherit the fault fallback of the body.
func (l *Lowerer) newBlock() *mir.Block {
	block := l.fn.NewBlock()
	block.Fallback = l.fallback

	return block
}

// moveTo repositions the lowerer at the end of the given block.
func (l *Lowerer) moveTo(block *mir.Block) {
	l.block = block
}

// emit appends an instruction to the current block and returns it.
func (l *Lowerer) emit(instr *mir.Instr) *mir.Instr {
	l.block.Append(instr)
	return instr
}

// emitValue appends an instruction producing a new value of the given type
// and returns the value.
func (l *Lowerer) emitValue(instr *mir.Instr, typ types.Type) *mir.Value {
	instr.Result = l.fn.NewValue(typ, instr)
	l.block.Append(instr)

	return instr.Result
}

// branchTo terminates the current block with an unconditional branch unless
// it already ends in a control transfer.
func (l *Lowerer) branchTo(target *mir.Block) {
	if !l.block.Terminated() {
		l.block.SetTerm(&mir.Instr{Op: mir.OpBr, Targets: []*mir.Block{target}})
	}
}

// slotOf returns the frame slot of a mutable symbol, assigning one on first
// use.
func (l *Lowerer) slotOf(sym *ast.Symbol) int {
	if sym.FrameSlot < 0 {
		sym.FrameSlot = l.fn.NumSlots
		l.fn.NumSlots++
	}

	return sym.FrameSlot
}

// newSlot allocates a fresh compiler-internal frame slot.
func (l *Lowerer) newSlot() int {
	slot := l.fn.NumSlots
	l.fn.NumSlots++

	return slot
}

// zeroOperand returns the zero-value constant of a type.
func zeroOperand(typ types.Type) mir.Operand {
	switch {
	case types.Equals(typ, types.PrimInt):
		return mir.ConstInt{}
	case types.Equals(typ, types.PrimFloat):
		return mir.ConstFloat{}
	case types.Equals(typ, types.PrimBool):
		return mir.ConstBool{}
	case types.Equals(typ, types.PrimString):
		return mir.ConstString{}
	default:
		return mir.ConstUnit{}
	}
}
