package exec

import (
	"rillc/codegen"
	"rillc/mir"
	"rillc/report"
	"rillc/runtime/memory"
)

// VM executes bytecode programs.  The machine is a stack machine over typed
// runtime values; each function call gets a frame of slots holding both the
// source-level variables and the fixed temporaries of the calling
// convention.
type VM struct {
	prog *codegen.Program
	env  *Env
}

// NewVM creates a virtual machine for a program.
func NewVM(prog *codegen.Program, env *Env) *VM {
	return &VM{prog: prog, env: env}
}

// Run executes the program entry point.
func (vm *VM) Run() (memory.Value, error) {
	return vm.RunCode(vm.prog.Main, nil)
}

// Call executes a named function with arguments.
func (vm *VM) Call(name string, args []memory.Value) (memory.Value, error) {
	fc, ok := vm.prog.Funcs[name]
	if !ok {
		return memory.Value{}, report.Fault(report.KindDataFault,
			"no function named %q", name)
	}

	return vm.RunCode(fc, args)
}

// RunCode executes one compiled function with a fresh frame.
func (vm *VM) RunCode(fc *codegen.FuncCode, args []memory.Value) (memory.Value, error) {
	frame := make([]memory.Value, fc.NumSlots)
	return vm.run(fc, frame, args)
}

// RunRegion executes region code over an existing frame, as the JIT driver
// does after compiling a function suffix.
func (vm *VM) RunRegion(fc *codegen.FuncCode, frame []memory.Value) (memory.Value, error) {
	return vm.run(fc, frame, nil)
}

func (vm *VM) run(fc *codegen.FuncCode, frame []memory.Value, args []memory.Value) (memory.Value, error) {
	stack := make([]memory.Value, 0, 16)
	stack = append(stack, args...)

	push := func(v memory.Value) {
		stack = append(stack, v)
	}
	pop := func() memory.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	pc := 0
	for pc < len(fc.Code) {
		if err := vm.env.Ctx.Err(); err != nil {
			return memory.Value{}, err
		}

		op, imm := codegen.Decode(fc.Code[pc])

		var err error
		switch op {
		case codegen.BCNop:
		case codegen.BCConst:
			push(constValue(fc.Consts[imm]))
		case codegen.BCSlotGet:
			push(frame[imm])
		case codegen.BCSlotSet:
			frame[imm] = pop()
		case codegen.BCArg:
			name := fc.Consts[imm].Str
			if arg, ok := vm.env.Args[name]; ok {
				push(arg)
			} else {
				err = report.Fault(report.KindDataFault,
					"no runtime argument named %q", name)
			}
		case codegen.BCCall:
			site := fc.Calls[imm]
			callArgs := make([]memory.Value, site.Arity)
			for i := site.Arity - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}

			var result memory.Value
			result, err = vm.Call(site.Callee, callArgs)
			if err == nil {
				push(result)
			}
		case codegen.BCLoad:
			format := pop()
			source := pop()

			var ref memory.Ref
			ref, err = vm.env.Svc.Load(vm.env.Ctx, source.Str, format.Str)
			if err == nil {
				vm.env.Track(ref)
				push(memory.RefValue(ref))
			}
		case codegen.BCSave:
			format := pop()
			sink := pop()
			handle := pop()

			var ref memory.Ref
			ref, err = vm.env.Svc.Save(vm.env.Ctx, handle.Ref, sink.Str, format.Str)
			if err == nil {
				push(memory.RefValue(ref))
			}
		case codegen.BCFilter:
			pred := pop()
			handle := pop()

			var ref memory.Ref
			ref, err = vm.env.Svc.Filter(vm.env.Ctx, handle.Ref, pred)
			if err == nil {
				vm.env.Track(ref)
				push(memory.RefValue(ref))
			}
		case codegen.BCGroupBy:
			key := pop()
			handle := pop()

			var ref memory.Ref
			ref, err = vm.env.Svc.GroupBy(vm.env.Ctx, handle.Ref, key)
			if err == nil {
				vm.env.Track(ref)
				push(memory.RefValue(ref))
			}
		case codegen.BCMakeList:
			elems := make([]memory.Value, imm)
			for i := imm - 1; i >= 0; i-- {
				elems[i] = pop()
			}

			var ref memory.Ref
			ref, err = vm.env.Svc.MakeList(vm.env.Ctx, elems)
			if err == nil {
				vm.env.Track(ref)
				push(memory.RefValue(ref))
			}
		case codegen.BCMakeMap:
			keys := make([]memory.Value, imm)
			values := make([]memory.Value, imm)
			for i := imm - 1; i >= 0; i-- {
				values[i] = pop()
				keys[i] = pop()
			}

			var ref memory.Ref
			ref, err = vm.env.Svc.MakeMap(vm.env.Ctx, keys, values)
			if err == nil {
				vm.env.Track(ref)
				push(memory.RefValue(ref))
			}
		case codegen.BCNeg, codegen.BCNot:
			operand := pop()

			var result memory.Value
			result, err = unaryOp(vmUnaryOps[op], operand)
			if err == nil {
				push(result)
			}
		case codegen.BCJmp:
			pc = imm
			continue
		case codegen.BCJmpFalse:
			if !pop().Truthy() {
				pc = imm
				continue
			}
		case codegen.BCRet:
			return pop(), nil
		case codegen.BCJitEnter:
			if vm.env.Regions == nil {
				return memory.Value{}, report.Fault(report.KindDataFault,
					"deferred region %d has no runner", imm)
			}

			var result memory.Value
			result, err = vm.env.Regions.EnterRegion(vm.env, vm.prog, imm, frame)
			if err == nil {
				push(result)
			}
		default:
			if mop, ok := vmBinaryOps[op]; ok {
				rhs := pop()
				lhs := pop()

				var result memory.Value
				result, err = binaryOp(mop, lhs, rhs)
				if err == nil {
					push(result)
				}
			} else {
				return memory.Value{}, report.Fault(report.KindDataFault,
					"undefined opcode %d", op)
			}
		}

		if err != nil {
			err = tagBlock(err, fc.BlockAt(pc))
			handler := fc.Handler(pc)
			if handler < 0 || !recoverable(err) {
				return memory.Value{}, err
			}

			// A memory fault gets a reclamation round before the handler
			// runs so a retrying attempt sees relieved pressure.
			if kind, _ := report.KindOf(err); kind == report.KindOutOfMemory {
				vm.env.Mem.Reclaim()
			}

			stack = stack[:0]
			pc = handler
			continue
		}

		pc++
	}

	return memory.Unit(), nil
}

// -----------------------------------------------------------------------------

var vmBinaryOps = map[codegen.Opcode]mir.Op{
	codegen.BCAdd: mir.OpAdd,
	codegen.BCSub: mir.OpSub,
	codegen.BCMul: mir.OpMul,
	codegen.BCDiv: mir.OpDiv,
	codegen.BCMod: mir.OpMod,
	codegen.BCEq:  mir.OpEq,
	codegen.BCNeq: mir.OpNeq,
	codegen.BCLt:  mir.OpLt,
	codegen.BCGt:  mir.OpGt,
	codegen.BCLeq: mir.OpLeq,
	codegen.BCGeq: mir.OpGeq,
	codegen.BCAnd: mir.OpAnd,
	codegen.BCOr:  mir.OpOr,
}

var vmUnaryOps = map[codegen.Opcode]mir.Op{
	codegen.BCNeg: mir.OpNeg,
	codegen.BCNot: mir.OpNot,
}

// constValue converts a constant pool entry to its runtime value.
func constValue(c codegen.Const) memory.Value {
	switch c.Kind {
	case codegen.ConstInt:
		return memory.IntValue(c.Int)
	case codegen.ConstFloat:
		return memory.FloatValue(c.Float)
	case codegen.ConstBool:
		return memory.BoolValue(c.Bool)
	case codegen.ConstString:
		return memory.StringValue(c.Str)
	default:
		return memory.Unit()
	}
}
