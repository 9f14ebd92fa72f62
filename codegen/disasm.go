package codegen

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble renders a program as readable assembly listing text.
func Disassemble(prog *Program) string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "program %s\n", prog.Name)

	names := make([]string, 0, len(prog.Funcs))
	for name := range prog.Funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sb.WriteRune('\n')
		disassembleFunc(&sb, prog.Funcs[name])
	}

	if len(prog.Regions) > 0 {
		sb.WriteString("\nregions:\n")
		for i, region := range prog.Regions {
			fmt.Fprintf(&sb, "  r%d = %s at b%d\n", i, region.Func, region.Boundary)
		}
	}

	return sb.String()
}

func disassembleFunc(sb *strings.Builder, fc *FuncCode) {
	fmt.Fprintf(sb, "func %s/%d slots=%d:\n", fc.Name, fc.Arity, fc.NumSlots)

	for pc, word := range fc.Code {
		op, imm := Decode(word)
		fmt.Fprintf(sb, "  %4d: %s", pc, op.Name())

		switch op {
		case BCConst, BCArg:
			fmt.Fprintf(sb, " %s", fc.Consts[imm])
		case BCCall:
			site := fc.Calls[imm]
			fmt.Fprintf(sb, " %s/%d", site.Callee, site.Arity)
		case BCJitEnter:
			fmt.Fprintf(sb, " r%d", imm)
		default:
			if op.HasImm() {
				fmt.Fprintf(sb, " %d", imm)
			}
		}

		sb.WriteRune('\n')
	}

	for _, fr := range fc.Faults {
		fmt.Fprintf(sb, "  fault [%d, %d) -> %d\n", fr.Start, fr.End, fr.Handler)
	}
}
