// Package jit compiles deferred code regions at run time.  Compiled regions
// are cached per specialization; when compilation cannot finish within its
// deadline the invocation falls back to direct interpretation so execution
// never blocks on the compiler.
package jit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"rillc/codegen"
	"rillc/exec"
	"rillc/mir"
	"rillc/partition"
	"rillc/report"
	"rillc/runtime/memory"
)

// Key identifies a compiled region specialization: the region plus the shape
// of the runtime arguments it was compiled against.
type Key struct {
	Region int
	Shape  string
}

// Config tunes the driver.
type Config struct {
	// CacheSize bounds the number of cached region specializations.
	CacheSize int

	// CompileTimeout bounds how long an invocation waits for compilation
	// before falling back to interpretation.
	CompileTimeout time.Duration
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		CacheSize:      64,
		CompileTimeout: 50 * time.Millisecond,
	}
}

// Driver implements exec.RegionRunner over a bundle and its partitioning.
type Driver struct {
	bundle *mir.Bundle
	parts  map[string]*partition.Result
	cfg    Config
	clock  clock.Clock
	log    *zap.Logger

	mu    sync.Mutex
	cache *lruCache
	group singleflight.Group

	hitsTotal     prometheus.Counter
	compilesTotal prometheus.Counter
	timeoutsTotal prometheus.Counter
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock substitutes the wall clock used for compile deadlines.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithLogger attaches a logger to the driver.
func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// NewDriver creates a JIT driver.  A nil registerer skips metric
// registration.
func NewDriver(bundle *mir.Bundle, parts map[string]*partition.Result, cfg Config, reg prometheus.Registerer, opts ...Option) *Driver {
	d := &Driver{
		bundle: bundle,
		parts:  parts,
		cfg:    cfg,
		clock:  clock.New(),
		log:    zap.NewNop(),
		cache:  newLRUCache(cfg.CacheSize),

		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "jit", Name: "cache_hits_total",
			Help: "Region executions served from the specialization cache.",
		}),
		compilesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "jit", Name: "compiles_total",
			Help: "Region compilations performed.",
		}),
		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "jit", Name: "timeouts_total",
			Help: "Region executions that fell back to interpretation.",
		}),
	}

	for _, opt := range opts {
		opt(d)
	}

	if reg != nil {
		reg.MustRegister(d.hitsTotal, d.compilesTotal, d.timeoutsTotal)
	}

	return d
}

// CachedSpecializations returns how many compiled specializations are
// resident.
func (d *Driver) CachedSpecializations() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cache.len()
}

// -----------------------------------------------------------------------------

// EnterRegion executes a deferred region over a live frame.
func (d *Driver) EnterRegion(env *exec.Env, prog *codegen.Program, region int, frame []memory.Value) (memory.Value, error) {
	if region < 0 || region >= len(prog.Regions) {
		return memory.Value{}, report.Fault(report.KindDataFault,
			"undefined region %d", region)
	}

	desc := prog.Regions[region]
	fn, boundary, err := d.resolve(desc)
	if err != nil {
		return memory.Value{}, err
	}

	key := Key{Region: region, Shape: shapeOf(env.Args)}

	d.mu.Lock()
	code, cached := d.cache.get(key)
	d.mu.Unlock()

	if cached {
		d.hitsTotal.Inc()
		return exec.NewVM(prog, env).RunRegion(code, frame)
	}

	code, err = d.compile(key, fn, boundary, env.Args)
	if err != nil {
		if kind, _ := report.KindOf(err); kind != report.KindJitTimeout {
			return memory.Value{}, err
		}

		// The compile deadline passed.  Compilation finishes in the
		// background for future callers; this invocation interprets.
		d.timeoutsTotal.Inc()
		d.log.Warn("region compile deadline passed, interpreting",
			zap.String("func", desc.Func),
			zap.Int("region", region))

		return exec.NewInterp(d.bundle, env).RunFrom(fn, boundary, frame)
	}

	return exec.NewVM(prog, env).RunRegion(code, frame)
}

// resolve maps a region descriptor back to its IR.
func (d *Driver) resolve(desc codegen.Region) (*mir.Func, *mir.Block, error) {
	fn, ok := d.bundle.Funcs[desc.Func]
	if !ok {
		return nil, nil, report.Fault(report.KindDataFault,
			"region names unknown function %q", desc.Func)
	}

	for _, block := range fn.Blocks {
		if block.ID == desc.Boundary {
			return fn, block, nil
		}
	}

	return nil, nil, report.Fault(report.KindDataFault,
		"region boundary b%d missing from %s", desc.Boundary, desc.Func)
}

// compile generates region code under the deadline, deduplicating concurrent
// requests for the same specialization.
func (d *Driver) compile(key Key, fn *mir.Func, boundary *mir.Block, args map[string]memory.Value) (*codegen.FuncCode, error) {
	ch := d.group.DoChan(key.String(), func() (interface{}, error) {
		started := d.clock.Now()

		code := codegen.GenerateSpecializedRegion(fn, boundary, d.parts[fn.Name], args)

		d.mu.Lock()
		d.cache.add(key, code)
		d.mu.Unlock()

		d.compilesTotal.Inc()
		d.log.Debug("compiled region",
			zap.String("func", fn.Name),
			zap.Int("boundary", boundary.ID),
			zap.String("shape", key.Shape),
			zap.Duration("elapsed", d.clock.Since(started)))

		return code, nil
	})

	timer := d.clock.Timer(d.cfg.CompileTimeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}

		return result.Val.(*codegen.FuncCode), nil
	case <-timer.C:
		return nil, report.Fault(report.KindJitTimeout,
			"region %d compile exceeded %s", key.Region, d.cfg.CompileTimeout)
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%s", k.Region, k.Shape)
}

// shapeOf derives the specialization shape from the runtime arguments: the
// sorted argument names paired with their observed kinds and values.  Two
// invocations share a specialization only when the region would compile to
// the same code, so the value is part of the shape.  Dataset handles are
// per-invocation and contribute their kind only.
func shapeOf(args map[string]memory.Value) string {
	if len(args) == 0 {
		return "-"
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		v := args[name]
		if v.Kind == memory.KindRef {
			parts[i] = fmt.Sprintf("%s:%d", name, v.Kind)
		} else {
			parts[i] = fmt.Sprintf("%s:%d=%s", name, v.Kind, v)
		}
	}

	return strings.Join(parts, ",")
}
