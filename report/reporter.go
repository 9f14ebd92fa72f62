package report

import "sync"

// Reporter collects and displays diagnostics during compilation.  The reporter
// respects the set log level and is synchronized: its methods can be safely
// called from multiple goroutines compiling independent units.
type Reporter struct {
	// The mutex used to synchronize reporting calls.
	m sync.Mutex

	// The selected log level of the reporter.  This must be one of the
	// enumerated log levels below.
	logLevel int

	// The diagnostics collected so far, errors and warnings both.
	diags []*Diagnostic

	// Indicates whether or not an error has been detected.
	isErr bool
}

// Enumeration of the different possible log levels.
const (
	LogLevelSilent  = iota // Displays no output.
	LogLevelError          // Displays only errors to the user.
	LogLevelWarn           // Displays warnings and errors to the user.
	LogLevelVerbose        // Displays all compilation messages (default).
)

// NewReporter creates a new reporter with the given log level.
func NewReporter(logLevel int) *Reporter {
	return &Reporter{logLevel: logLevel}
}

// Report records a diagnostic and displays it according to the log level.
func (r *Reporter) Report(diag *Diagnostic) {
	r.m.Lock()
	defer r.m.Unlock()

	r.diags = append(r.diags, diag)

	if diag.IsWarning {
		if r.logLevel > LogLevelWarn {
			displayDiagnostic(diag)
		}
	} else {
		r.isErr = true

		if r.logLevel > LogLevelSilent {
			displayDiagnostic(diag)
		}
	}
}

// AnyErrors returns whether any errors have been detected.
func (r *Reporter) AnyErrors() bool {
	r.m.Lock()
	defer r.m.Unlock()

	return r.isErr
}

// Diagnostics returns all the diagnostics collected so far.
func (r *Reporter) Diagnostics() []*Diagnostic {
	r.m.Lock()
	defer r.m.Unlock()

	return r.diags
}
