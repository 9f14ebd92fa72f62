package opt

import (
	"go.uber.org/zap"

	"rillc/mir"
	"rillc/report"
)

// DefaultMaxPasses is the default iteration cap of the rewrite loop.
const DefaultMaxPasses = 16

// Optimizer rewrites MIR functions by repeatedly scanning for a closed set of
// structural patterns and replacing them with equivalent cheaper forms until
// a fixed point or the configured iteration cap is reached.  Every rewrite is
// semantics-preserving: instructions with externally visible side effects are
// never eliminated, duplicated, or reordered relative to one another.
type Optimizer struct {
	// The iteration cap of the outer rewrite loop.
	maxPasses int

	log *zap.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMaxPasses overrides the rewrite loop iteration cap.
func WithMaxPasses(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxPasses = n
		}
	}
}

// WithLogger sets the logger used for pass tracing.
func WithLogger(log *zap.Logger) Option {
	return func(o *Optimizer) {
		o.log = log
	}
}

// NewOptimizer creates a new optimizer.
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{
		maxPasses: DefaultMaxPasses,
		log:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Optimize rewrites a function in place until no pattern applies.  It returns
// the number of passes that performed at least one rewrite.
func (o *Optimizer) Optimize(fn *mir.Func) int {
	passes := 0
	for ; passes < o.maxPasses; passes++ {
		changed := o.foldConstants(fn)
		changed = o.removeIdentities(fn) || changed
		changed = o.eliminateDuplicates(fn) || changed
		changed = o.hoistLoopInvariants(fn) || changed
		changed = o.sweepDeadValues(fn) || changed
		changed = o.foldConstantBranches(fn) || changed

		if !changed {
			break
		}
	}

	fn.PruneUnreachable()
	o.verify(fn)

	o.log.Debug("optimized function",
		zap.String("func", fn.Name),
		zap.Int("passes", passes),
		zap.Int("blocks", len(fn.Blocks)),
	)

	return passes
}

// -----------------------------------------------------------------------------

// verify checks the IR invariants the rewrite rules rely on.  A violation
// here means an unsound rewrite happened: it is fatal.
func (o *Optimizer) verify(fn *mir.Func) {
	defined := make(map[*mir.Value]*mir.Instr)

	fn.Instrs(func(instr *mir.Instr) {
		if instr.Result != nil {
			if prev, ok := defined[instr.Result]; ok && prev != instr {
				report.RaiseICE("value %s has multiple defining instructions in %s",
					instr.Result.Repr(), fn.Name)
			}

			defined[instr.Result] = instr
		}
	})

	for _, block := range fn.Blocks {
		if block.Term == nil {
			report.RaiseICE("block %s of %s has no terminator", block.Repr(), fn.Name)
		}
	}

	fn.Instrs(func(instr *mir.Instr) {
		for _, operand := range instr.Operands {
			if value, ok := operand.(*mir.Value); ok {
				if _, ok := defined[value]; !ok {
					report.RaiseICE("value %s used in %s but never defined",
						value.Repr(), fn.Name)
				}
			}
		}
	})
}

// replaceUses replaces every use of a value with another operand.
func replaceUses(fn *mir.Func, value *mir.Value, with mir.Operand) {
	fn.Instrs(func(instr *mir.Instr) {
		for i, operand := range instr.Operands {
			if operand == value {
				instr.Operands[i] = with
			}
		}
	})
}

// removeInstrs removes the given instructions from their blocks.  Terminators
// are never removed this way.
func removeInstrs(fn *mir.Func, dead map[*mir.Instr]bool) {
	if len(dead) == 0 {
		return
	}

	for _, block := range fn.Blocks {
		kept := block.Instrs[:0]
		for _, instr := range block.Instrs {
			if !dead[instr] {
				kept = append(kept, instr)
			}
		}
		block.Instrs = kept
	}
}
