package mir

import (
	"strings"
)

// Repr returns the indented string representation of the whole function, in
// the same shape the optimizer and tests log it.
func (fn *Func) Repr() string {
	sb := strings.Builder{}

	sb.WriteString("func ")
	sb.WriteString(fn.Name)
	sb.WriteRune('(')
	for i, pt := range fn.ParamTypes {
		sb.WriteString(pt.Repr())

		if i < len(fn.ParamTypes)-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString(") -> ")
	sb.WriteString(fn.ReturnType.Repr())
	sb.WriteString(" {\n")

	for _, block := range fn.Blocks {
		sb.WriteString(block.Repr())
		if block.Fallback != nil {
			sb.WriteString(" !")
			sb.WriteString(block.Fallback.Repr())
		}
		sb.WriteString(":\n")

		for _, instr := range block.Instrs {
			sb.WriteString("  ")
			sb.WriteString(instr.Repr())
			sb.WriteRune('\n')
		}

		if block.Term != nil {
			sb.WriteString("  ")
			sb.WriteString(block.Term.Repr())
			sb.WriteRune('\n')
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
