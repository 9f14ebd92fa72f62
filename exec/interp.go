package exec

import (
	"rillc/mir"
	"rillc/report"
	"rillc/runtime/memory"
)

// Interp evaluates IR directly.  It is the reference evaluator the compiled
// forms are checked against, and the fallback execution path when a deferred
// region cannot be JIT compiled in time.
type Interp struct {
	bundle *mir.Bundle
	env    *Env
}

// NewInterp creates an interpreter over a bundle.
func NewInterp(bundle *mir.Bundle, env *Env) *Interp {
	return &Interp{bundle: bundle, env: env}
}

// Run evaluates the program entry point.
func (in *Interp) Run() (memory.Value, error) {
	return in.Call(in.bundle.Main.Name, nil)
}

// Call evaluates a named function with arguments.
func (in *Interp) Call(name string, args []memory.Value) (memory.Value, error) {
	fn, ok := in.bundle.Funcs[name]
	if !ok {
		return memory.Value{}, report.Fault(report.KindDataFault,
			"no function named %q", name)
	}

	frame := NewFrame(fn)
	for _, block := range fn.Blocks {
		for _, instr := range block.Instrs {
			if instr.Op == mir.OpParam {
				frame[fn.NumSlots+instr.Result.ID] = args[instr.Slot]
			}
		}
	}

	return in.RunFrom(fn, fn.Entry(), frame)
}

// NewFrame allocates a frame for a function: the source-level slots followed
// by one fixed temporary per IR value.
func NewFrame(fn *mir.Func) []memory.Value {
	return make([]memory.Value, fn.NumSlots+fn.NumValues())
}

// RunFrom evaluates a function starting at the given block over an existing
// frame.  The JIT driver uses a non-entry start block to interpret just the
// deferred suffix of a split function.
func (in *Interp) RunFrom(fn *mir.Func, block *mir.Block, frame []memory.Value) (memory.Value, error) {
	for {
		if err := in.env.Ctx.Err(); err != nil {
			return memory.Value{}, err
		}

		next, result, err := in.runBlock(fn, block, frame)
		if err != nil {
			err = tagBlock(err, block.ID)
			if block.Fallback == nil || !recoverable(err) {
				return memory.Value{}, err
			}

			if kind, _ := report.KindOf(err); kind == report.KindOutOfMemory {
				in.env.Mem.Reclaim()
			}

			block = block.Fallback
			continue
		}

		if next == nil {
			return result, nil
		}

		block = next
	}
}

// runBlock evaluates one block.  It returns the successor block, or a nil
// successor and the function result when the block returns.
func (in *Interp) runBlock(fn *mir.Func, block *mir.Block, frame []memory.Value) (*mir.Block, memory.Value, error) {
	for _, instr := range block.Instrs {
		if err := in.runInstr(fn, instr, frame); err != nil {
			return nil, memory.Value{}, err
		}
	}

	term := block.Term
	switch term.Op {
	case mir.OpBr:
		return term.Targets[0], memory.Value{}, nil
	case mir.OpCondBr:
		if in.operand(fn, term.Operands[0], frame).Truthy() {
			return term.Targets[0], memory.Value{}, nil
		}

		return term.Targets[1], memory.Value{}, nil
	case mir.OpRet:
		if len(term.Operands) == 0 {
			return nil, memory.Unit(), nil
		}

		return nil, in.operand(fn, term.Operands[0], frame), nil
	default:
		return nil, memory.Value{}, report.Fault(report.KindDataFault,
			"undefined terminator in %s", fn.Name)
	}
}

func (in *Interp) runInstr(fn *mir.Func, instr *mir.Instr, frame []memory.Value) error {
	set := func(v memory.Value) {
		frame[fn.NumSlots+instr.Result.ID] = v
	}

	switch instr.Op {
	case mir.OpParam:
		// Bound when the frame was built.
		return nil
	case mir.OpSlotGet:
		set(frame[instr.Slot])
		return nil
	case mir.OpSlotSet:
		frame[instr.Slot] = in.operand(fn, instr.Operands[0], frame)
		return nil
	case mir.OpArgLookup:
		if arg, ok := in.env.Args[instr.Sym]; ok {
			set(arg)
			return nil
		}

		return report.Fault(report.KindDataFault,
			"no runtime argument named %q", instr.Sym)
	case mir.OpCall:
		args := make([]memory.Value, len(instr.Operands))
		for i, operand := range instr.Operands {
			args[i] = in.operand(fn, operand, frame)
		}

		result, err := in.Call(instr.Sym, args)
		if err != nil {
			return err
		}

		set(result)
		return nil
	case mir.OpLoad:
		source := in.operand(fn, instr.Operands[0], frame)
		format := in.operand(fn, instr.Operands[1], frame)

		ref, err := in.env.Svc.Load(in.env.Ctx, source.Str, format.Str)
		if err != nil {
			return err
		}

		in.env.Track(ref)
		set(memory.RefValue(ref))
		return nil
	case mir.OpSave:
		handle := in.operand(fn, instr.Operands[0], frame)
		sink := in.operand(fn, instr.Operands[1], frame)
		format := in.operand(fn, instr.Operands[2], frame)

		ref, err := in.env.Svc.Save(in.env.Ctx, handle.Ref, sink.Str, format.Str)
		if err != nil {
			return err
		}

		set(memory.RefValue(ref))
		return nil
	case mir.OpFilter:
		handle := in.operand(fn, instr.Operands[0], frame)
		pred := in.operand(fn, instr.Operands[1], frame)

		ref, err := in.env.Svc.Filter(in.env.Ctx, handle.Ref, pred)
		if err != nil {
			return err
		}

		in.env.Track(ref)
		set(memory.RefValue(ref))
		return nil
	case mir.OpGroupBy:
		handle := in.operand(fn, instr.Operands[0], frame)
		key := in.operand(fn, instr.Operands[1], frame)

		ref, err := in.env.Svc.GroupBy(in.env.Ctx, handle.Ref, key)
		if err != nil {
			return err
		}

		in.env.Track(ref)
		set(memory.RefValue(ref))
		return nil
	case mir.OpMakeList:
		elems := make([]memory.Value, len(instr.Operands))
		for i, operand := range instr.Operands {
			elems[i] = in.operand(fn, operand, frame)
		}

		ref, err := in.env.Svc.MakeList(in.env.Ctx, elems)
		if err != nil {
			return err
		}

		in.env.Track(ref)
		set(memory.RefValue(ref))
		return nil
	case mir.OpMakeMap:
		keys := make([]memory.Value, len(instr.Operands)/2)
		values := make([]memory.Value, len(instr.Operands)/2)
		for i := 0; i < len(instr.Operands); i += 2 {
			keys[i/2] = in.operand(fn, instr.Operands[i], frame)
			values[i/2] = in.operand(fn, instr.Operands[i+1], frame)
		}

		ref, err := in.env.Svc.MakeMap(in.env.Ctx, keys, values)
		if err != nil {
			return err
		}

		in.env.Track(ref)
		set(memory.RefValue(ref))
		return nil
	case mir.OpNeg, mir.OpNot:
		result, err := unaryOp(instr.Op, in.operand(fn, instr.Operands[0], frame))
		if err != nil {
			return err
		}

		set(result)
		return nil
	default:
		result, err := binaryOp(instr.Op,
			in.operand(fn, instr.Operands[0], frame),
			in.operand(fn, instr.Operands[1], frame))
		if err != nil {
			return err
		}

		set(result)
		return nil
	}
}

func (in *Interp) operand(fn *mir.Func, operand mir.Operand, frame []memory.Value) memory.Value {
	switch v := operand.(type) {
	case *mir.Value:
		return frame[fn.NumSlots+v.ID]
	case mir.ConstInt:
		return memory.IntValue(v.Val)
	case mir.ConstFloat:
		return memory.FloatValue(v.Val)
	case mir.ConstBool:
		return memory.BoolValue(v.Val)
	case mir.ConstString:
		return memory.StringValue(v.Val)
	default:
		return memory.Unit()
	}
}
