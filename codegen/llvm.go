package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"rillc/mir"
	"rillc/partition"
	"rillc/report"
	"rillc/types"
)

// LLVMRenderer renders the AOT portion of a bundle as textual LLVM IR.  Only
// functions classified fully AOT get bodies; everything else is declared so
// the module remains self-consistent.  Runtime services appear as declared
// rill_* symbols.
type LLVMRenderer struct {
	bundle *mir.Bundle
	parts  map[string]*partition.Result

	mod     *ir.Module
	externs map[string]*ir.Func
	funcs   map[string]*ir.Func
	strings map[string]value.Value
}

// RenderLLVM renders the bundle to LLVM assembly text.
func RenderLLVM(bundle *mir.Bundle, parts map[string]*partition.Result) string {
	r := &LLVMRenderer{
		bundle:  bundle,
		parts:   parts,
		mod:     ir.NewModule(),
		externs: make(map[string]*ir.Func),
		funcs:   make(map[string]*ir.Func),
		strings: make(map[string]value.Value),
	}

	// Declare every function first so calls resolve regardless of order.
	for name, fn := range bundle.Funcs {
		params := make([]*ir.Param, len(fn.ParamTypes))
		for i, pt := range fn.ParamTypes {
			params[i] = ir.NewParam(fmt.Sprintf("p%d", i), r.convType(pt))
		}

		r.funcs[name] = r.mod.NewFunc(name, r.convReturnType(fn.ReturnType), params...)
	}

	for name, fn := range bundle.Funcs {
		if r.parts[name].Class == partition.AOT {
			r.renderBody(fn, r.funcs[name])
		}
	}

	return r.mod.String()
}

// -----------------------------------------------------------------------------

// fnRender is the per-function rendering state.
type fnRender struct {
	r      *LLVMRenderer
	fn     *mir.Func
	llFn   *ir.Func
	block  *ir.Block
	blocks map[*mir.Block]*ir.Block
	values map[*mir.Value]value.Value
	slots  map[int]*ir.InstAlloca
}

func (r *LLVMRenderer) renderBody(fn *mir.Func, llFn *ir.Func) {
	fr := &fnRender{
		r:      r,
		fn:     fn,
		llFn:   llFn,
		blocks: make(map[*mir.Block]*ir.Block),
		values: make(map[*mir.Value]value.Value),
		slots:  make(map[int]*ir.InstAlloca),
	}

	// The variable block allocates every frame slot before any body code
	// runs.
	varBlock := llFn.NewBlock("vars")
	for _, block := range fn.Blocks {
		fr.blocks[block] = llFn.NewBlock(fmt.Sprintf("b%d", block.ID))
	}

	fr.block = varBlock
	for slot, typ := range slotTypes(fn) {
		fr.slots[slot] = varBlock.NewAlloca(r.convType(typ))
	}
	varBlock.NewBr(fr.blocks[fn.Entry()])

	for _, block := range fn.Blocks {
		fr.block = fr.blocks[block]

		for _, instr := range block.Instrs {
			fr.renderInstr(instr)
		}

		fr.renderTerm(block.Term)
	}
}

// slotTypes infers the type of each frame slot from the first store into it.
func slotTypes(fn *mir.Func) map[int]types.Type {
	inferred := make(map[int]types.Type)

	fn.Instrs(func(instr *mir.Instr) {
		if instr.Op == mir.OpSlotSet {
			if _, ok := inferred[instr.Slot]; !ok {
				inferred[instr.Slot] = instr.Operands[0].Type()
			}
		}
	})

	return inferred
}

func (fr *fnRender) renderInstr(instr *mir.Instr) {
	switch instr.Op {
	case mir.OpParam:
		fr.values[instr.Result] = fr.llFn.Params[instr.Slot]
	case mir.OpSlotGet:
		slot := fr.slots[instr.Slot]
		fr.values[instr.Result] = fr.block.NewLoad(slot.ElemType, slot)
	case mir.OpSlotSet:
		fr.block.NewStore(fr.operand(instr.Operands[0]), fr.slots[instr.Slot])
	case mir.OpArgLookup:
		argFn := fr.r.extern("rill_arg", lltypes.I64, lltypes.I8Ptr)
		fr.values[instr.Result] = fr.block.NewCall(argFn, fr.r.stringPtr(instr.Sym))
	case mir.OpCall:
		args := make([]value.Value, len(instr.Operands))
		for i, operand := range instr.Operands {
			args[i] = fr.operand(operand)
		}

		call := fr.block.NewCall(fr.r.funcs[instr.Sym], args...)
		if instr.Result != nil {
			fr.values[instr.Result] = call
		}
	case mir.OpLoad:
		loadFn := fr.r.extern("rill_load", lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr)
		fr.values[instr.Result] = fr.block.NewCall(loadFn,
			fr.operand(instr.Operands[0]), fr.operand(instr.Operands[1]))
	case mir.OpSave:
		saveFn := fr.r.extern("rill_save", lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr)
		fr.values[instr.Result] = fr.block.NewCall(saveFn,
			fr.operand(instr.Operands[0]), fr.operand(instr.Operands[1]), fr.operand(instr.Operands[2]))
	case mir.OpFilter:
		filterFn := fr.r.extern("rill_filter", lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr)
		fr.values[instr.Result] = fr.block.NewCall(filterFn,
			fr.operand(instr.Operands[0]), fr.box(instr.Operands[1]))
	case mir.OpGroupBy:
		groupFn := fr.r.extern("rill_groupby", lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr)
		fr.values[instr.Result] = fr.block.NewCall(groupFn,
			fr.operand(instr.Operands[0]), fr.box(instr.Operands[1]))
	case mir.OpMakeList:
		listFn := fr.r.extern("rill_list_new", lltypes.I8Ptr)
		pushFn := fr.r.extern("rill_list_push", lltypes.Void, lltypes.I8Ptr, lltypes.I8Ptr)

		handle := fr.block.NewCall(listFn)
		for _, elem := range instr.Operands {
			fr.block.NewCall(pushFn, handle, fr.box(elem))
		}

		fr.values[instr.Result] = handle
	case mir.OpMakeMap:
		mapFn := fr.r.extern("rill_map_new", lltypes.I8Ptr)
		setFn := fr.r.extern("rill_map_set", lltypes.Void, lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr)

		handle := fr.block.NewCall(mapFn)
		for i := 0; i < len(instr.Operands); i += 2 {
			fr.block.NewCall(setFn, handle, fr.box(instr.Operands[i]), fr.box(instr.Operands[i+1]))
		}

		fr.values[instr.Result] = handle
	case mir.OpNeg:
		operand := fr.operand(instr.Operands[0])
		if types.Equals(instr.Operands[0].Type(), types.PrimFloat) {
			fr.values[instr.Result] = fr.block.NewFNeg(operand)
		} else {
			fr.values[instr.Result] = fr.block.NewSub(constant.NewInt(lltypes.I64, 0), operand)
		}
	case mir.OpNot:
		fr.values[instr.Result] = fr.block.NewXor(fr.operand(instr.Operands[0]), constant.True)
	case mir.OpAnd:
		fr.values[instr.Result] = fr.block.NewAnd(fr.operand(instr.Operands[0]), fr.operand(instr.Operands[1]))
	case mir.OpOr:
		fr.values[instr.Result] = fr.block.NewOr(fr.operand(instr.Operands[0]), fr.operand(instr.Operands[1]))
	default:
		fr.renderBinaryOp(instr)
	}
}

func (fr *fnRender) renderBinaryOp(instr *mir.Instr) {
	lhs := fr.operand(instr.Operands[0])
	rhs := fr.operand(instr.Operands[1])
	operandType := instr.Operands[0].Type()

	isFloat := types.Equals(operandType, types.PrimFloat)
	isString := types.Equals(operandType, types.PrimString)

	var result value.Value
	switch instr.Op {
	case mir.OpAdd:
		switch {
		case isFloat:
			result = fr.block.NewFAdd(lhs, rhs)
		case isString:
			concatFn := fr.r.extern("rill_str_concat", lltypes.I8Ptr, lltypes.I8Ptr, lltypes.I8Ptr)
			result = fr.block.NewCall(concatFn, lhs, rhs)
		default:
			result = fr.block.NewAdd(lhs, rhs)
		}
	case mir.OpSub:
		if isFloat {
			result = fr.block.NewFSub(lhs, rhs)
		} else {
			result = fr.block.NewSub(lhs, rhs)
		}
	case mir.OpMul:
		if isFloat {
			result = fr.block.NewFMul(lhs, rhs)
		} else {
			result = fr.block.NewMul(lhs, rhs)
		}
	case mir.OpDiv:
		if isFloat {
			result = fr.block.NewFDiv(lhs, rhs)
		} else {
			result = fr.block.NewSDiv(lhs, rhs)
		}
	case mir.OpMod:
		if isFloat {
			result = fr.block.NewFRem(lhs, rhs)
		} else {
			result = fr.block.NewSRem(lhs, rhs)
		}
	case mir.OpEq, mir.OpNeq, mir.OpLt, mir.OpGt, mir.OpLeq, mir.OpGeq:
		switch {
		case isFloat:
			result = fr.block.NewFCmp(floatPreds[instr.Op], lhs, rhs)
		case isString:
			cmpFn := fr.r.extern("rill_str_eq", lltypes.I1, lltypes.I8Ptr, lltypes.I8Ptr)
			eq := fr.block.NewCall(cmpFn, lhs, rhs)
			if instr.Op == mir.OpNeq {
				result = fr.block.NewXor(eq, constant.True)
			} else {
				result = eq
			}
		default:
			result = fr.block.NewICmp(intPreds[instr.Op], lhs, rhs)
		}
	default:
		report.RaiseICE("no LLVM form for instruction: %s", instr.Repr())
	}

	fr.values[instr.Result] = result
}

func (fr *fnRender) renderTerm(term *mir.Instr) {
	switch term.Op {
	case mir.OpBr:
		fr.block.NewBr(fr.blocks[term.Targets[0]])
	case mir.OpCondBr:
		fr.block.NewCondBr(fr.operand(term.Operands[0]),
			fr.blocks[term.Targets[0]], fr.blocks[term.Targets[1]])
	case mir.OpRet:
		if len(term.Operands) == 0 || types.IsUnit(term.Operands[0].Type()) {
			fr.block.NewRet(nil)
		} else {
			fr.block.NewRet(fr.operand(term.Operands[0]))
		}
	default:
		report.RaiseICE("no LLVM form for terminator: %s", term.Repr())
	}
}

var intPreds = map[mir.Op]enum.IPred{
	mir.OpEq:  enum.IPredEQ,
	mir.OpNeq: enum.IPredNE,
	mir.OpLt:  enum.IPredSLT,
	mir.OpGt:  enum.IPredSGT,
	mir.OpLeq: enum.IPredSLE,
	mir.OpGeq: enum.IPredSGE,
}

var floatPreds = map[mir.Op]enum.FPred{
	mir.OpEq:  enum.FPredOEQ,
	mir.OpNeq: enum.FPredONE,
	mir.OpLt:  enum.FPredOLT,
	mir.OpGt:  enum.FPredOGT,
	mir.OpLeq: enum.FPredOLE,
	mir.OpGeq: enum.FPredOGE,
}

// -----------------------------------------------------------------------------

func (fr *fnRender) operand(operand mir.Operand) value.Value {
	switch v := operand.(type) {
	case *mir.Value:
		return fr.values[v]
	case mir.ConstInt:
		return constant.NewInt(lltypes.I64, v.Val)
	case mir.ConstFloat:
		return constant.NewFloat(lltypes.Double, v.Val)
	case mir.ConstBool:
		return constant.NewBool(v.Val)
	case mir.ConstString:
		return fr.r.stringPtr(v.Val)
	case mir.ConstUnit:
		return constant.NewInt(lltypes.I8, 0)
	default:
		report.RaiseICE("no LLVM form for operand: %s", operand.Repr())
		return nil
	}
}

// box wraps a scalar operand as an opaque runtime cell for the extern data
// calls.
func (fr *fnRender) box(operand mir.Operand) value.Value {
	llValue := fr.operand(operand)

	switch {
	case types.Equals(operand.Type(), types.PrimInt):
		boxFn := fr.r.extern("rill_box_int", lltypes.I8Ptr, lltypes.I64)
		return fr.block.NewCall(boxFn, llValue)
	case types.Equals(operand.Type(), types.PrimFloat):
		boxFn := fr.r.extern("rill_box_float", lltypes.I8Ptr, lltypes.Double)
		return fr.block.NewCall(boxFn, llValue)
	case types.Equals(operand.Type(), types.PrimBool):
		boxFn := fr.r.extern("rill_box_bool", lltypes.I8Ptr, lltypes.I1)
		return fr.block.NewCall(boxFn, llValue)
	default:
		return llValue
	}
}

// extern declares a runtime symbol once and memoizes it.
func (r *LLVMRenderer) extern(name string, ret lltypes.Type, params ...lltypes.Type) *ir.Func {
	if fn, ok := r.externs[name]; ok {
		return fn
	}

	irParams := make([]*ir.Param, len(params))
	for i, pt := range params {
		irParams[i] = ir.NewParam(fmt.Sprintf("a%d", i), pt)
	}

	fn := r.mod.NewFunc(name, ret, irParams...)
	r.externs[name] = fn
	return fn
}

// stringPtr interns a string literal as a null-terminated global and returns
// a pointer to its first byte.
func (r *LLVMRenderer) stringPtr(s string) value.Value {
	if ptr, ok := r.strings[s]; ok {
		return ptr
	}

	data := constant.NewCharArrayFromString(s + "\x00")
	global := r.mod.NewGlobalDef(fmt.Sprintf("str.%d", len(r.strings)), data)
	global.Immutable = true

	zero := constant.NewInt(lltypes.I64, 0)
	ptr := constant.NewGetElementPtr(data.Typ, global, zero, zero)
	r.strings[s] = ptr
	return ptr
}

func (r *LLVMRenderer) convType(typ types.Type) lltypes.Type {
	switch {
	case types.Equals(typ, types.PrimBool):
		return lltypes.I1
	case types.Equals(typ, types.PrimInt):
		return lltypes.I64
	case types.Equals(typ, types.PrimFloat):
		return lltypes.Double
	case types.Equals(typ, types.PrimString), types.Equals(typ, types.PrimDataset):
		return lltypes.I8Ptr
	default:
		return lltypes.I8
	}
}

func (r *LLVMRenderer) convReturnType(typ types.Type) lltypes.Type {
	if types.IsUnit(typ) {
		return lltypes.Void
	}

	return r.convType(typ)
}
