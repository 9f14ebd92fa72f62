package report

import (
	"fmt"

	"github.com/pterm/pterm"
)

var (
	errorColorFG = pterm.FgRed
	errorStyleBG = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	warnColorFG  = pterm.FgYellow
	warnStyleBG  = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	spanColorFG  = pterm.FgCyan
)

// displayDiagnostic displays a single diagnostic to the console.
func displayDiagnostic(diag *Diagnostic) {
	label, labelBG, labelFG := "error", errorStyleBG, errorColorFG
	if diag.IsWarning {
		label, labelBG, labelFG = "warning", warnStyleBG, warnColorFG
	}

	labelBG.Print(fmt.Sprintf(" %s:%s ", diag.Phase, label))

	if diag.Span == nil {
		labelFG.Println(" " + prefixUnit(diag.Unit) + diag.Message)
	} else {
		labelFG.Print(" " + prefixUnit(diag.Unit) + diag.Message + " ")
		spanColorFG.Println(fmt.Sprintf("(%d:%d)", diag.Span.StartLine+1, diag.Span.StartCol+1))
	}
}

// prefixUnit prefixes a unit name to a message if the unit is known.
func prefixUnit(unit string) string {
	if unit == "" {
		return ""
	}

	return unit + ": "
}

// DisplayFatal displays a fatal error message.  Fatal errors stop all
// compilation immediately: they generally result from invalid configuration.
func DisplayFatal(msg string, args ...interface{}) {
	errorStyleBG.Print(" fatal ")
	errorColorFG.Println(" " + fmt.Sprintf(msg, args...))
}
