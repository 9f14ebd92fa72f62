// Package driver ties the compilation phases together and hosts compiled
// programs: it turns source text into executable artifacts and artifacts
// into invocable handles backed by the runtime.
package driver

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rillc/ast"
	"rillc/codegen"
	"rillc/exec"
	"rillc/extern"
	"rillc/jit"
	"rillc/lower"
	"rillc/mir"
	"rillc/opt"
	"rillc/partition"
	"rillc/report"
	"rillc/runtime/memory"
	"rillc/syntax"
	"rillc/walk"
)

// Unit is one source unit to compile.
type Unit struct {
	Name   string
	Source string
}

// Artifact is a fully compiled unit.
type Artifact struct {
	Name    string
	Bundle  *mir.Bundle
	Parts   map[string]*partition.Result
	Program *codegen.Program
}

// Compiler compiles units and hosts their runtime.
type Compiler struct {
	cfg      Config
	log      *zap.Logger
	reporter *report.Reporter
	reg      prometheus.Registerer

	mem     *memory.Manager
	svc     extern.Service
	memOnce sync.Once
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger attaches a logger to the compiler and everything it hosts.
func WithLogger(log *zap.Logger) Option {
	return func(c *Compiler) { c.log = log }
}

// WithReporter substitutes the diagnostic reporter.
func WithReporter(r *report.Reporter) Option {
	return func(c *Compiler) { c.reporter = r }
}

// WithService substitutes the external data service.  The default is an
// empty in-memory service.
func WithService(svc extern.Service) Option {
	return func(c *Compiler) { c.svc = svc }
}

// WithRegisterer sets the metrics registerer for the hosted runtime.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Compiler) { c.reg = reg }
}

// NewCompiler creates a compiler with the given configuration.
func NewCompiler(cfg Config, opts ...Option) *Compiler {
	c := &Compiler{
		cfg:      cfg,
		log:      zap.NewNop(),
		reporter: report.NewReporter(report.LogLevelSilent),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Memory returns the hosted memory manager, creating it on first use.
func (c *Compiler) Memory() *memory.Manager {
	c.memOnce.Do(func() {
		c.mem = memory.NewManager(c.cfg.MemoryConfig(), c.reg, memory.WithLogger(c.log))
		if c.svc == nil {
			c.svc = extern.NewMemService(c.mem, c.log)
		}
	})

	return c.mem
}

// Service returns the hosted external data service.
func (c *Compiler) Service() extern.Service {
	c.Memory()
	return c.svc
}

// -----------------------------------------------------------------------------

// Compile runs every compilation phase over one unit.
func (c *Compiler) Compile(unit Unit) (*Artifact, error) {
	prog, err := c.parse(unit)
	if err != nil {
		return nil, err
	}

	return c.CompileAST(unit.Name, prog)
}

// CompileAST runs the phases after parsing over an already built syntax
// tree, for callers that construct or transform programs directly.
func (c *Compiler) CompileAST(name string, prog *ast.Program) (*Artifact, error) {
	if err := c.analyze(name, prog); err != nil {
		return nil, err
	}

	bundle, err := c.lower(name, prog)
	if err != nil {
		return nil, err
	}

	return c.CompileBundle(name, bundle)
}

// CompileBundle runs the backend phases over pre-lowered functions.  The
// bundle is optimized in place.
func (c *Compiler) CompileBundle(name string, bundle *mir.Bundle) (*Artifact, error) {
	if err := c.optimize(name, bundle); err != nil {
		return nil, err
	}

	parts := make(map[string]*partition.Result, len(bundle.Funcs))
	for fname, fn := range bundle.Funcs {
		parts[fname] = partition.Partition(fn)
	}

	program, err := c.generate(name, bundle, parts)
	if err != nil {
		return nil, err
	}

	c.log.Info("compiled unit",
		zap.String("unit", name),
		zap.Int("functions", len(bundle.Funcs)),
		zap.Int("regions", len(program.Regions)))

	return &Artifact{
		Name:    name,
		Bundle:  bundle,
		Parts:   parts,
		Program: program,
	}, nil
}

// CompileAll compiles units concurrently.  Artifacts come back in unit
// order; failures across units are aggregated rather than stopping at the
// first broken one.
func (c *Compiler) CompileAll(units []Unit) ([]*Artifact, error) {
	artifacts := make([]*Artifact, len(units))

	var (
		mu   sync.Mutex
		merr *multierror.Error
	)

	var eg errgroup.Group
	for i, unit := range units {
		i, unit := i, unit

		eg.Go(func() error {
			artifact, err := c.Compile(unit)
			if err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}

			artifacts[i] = artifact
			return nil
		})
	}

	_ = eg.Wait()

	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	return artifacts, nil
}

// -----------------------------------------------------------------------------

// phase runs fn with diagnostic catching, reporting and returning the first
// diagnostic raised.
func (c *Compiler) phase(unitName string, fn func()) (err error) {
	defer report.CatchErrors(unitName, func(diag *report.Diagnostic) {
		c.reporter.Report(diag)
		err = diag
	})

	fn()
	return nil
}

func (c *Compiler) parse(unit Unit) (*ast.Program, error) {
	var prog *ast.Program

	err := c.phase(unit.Name, func() {
		prog = syntax.NewParser(unit.Name, unit.Source).Parse()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", unit.Name)
	}

	return prog, nil
}

func (c *Compiler) analyze(unitName string, prog *ast.Program) error {
	err := c.phase(unitName, func() {
		walk.WalkProgram(prog)
	})
	if err != nil {
		return errors.Wrapf(err, "analyzing %s", unitName)
	}

	return nil
}

func (c *Compiler) lower(unitName string, prog *ast.Program) (*mir.Bundle, error) {
	var bundle *mir.Bundle

	err := c.phase(unitName, func() {
		bundle = lower.Lower(prog)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "lowering %s", unitName)
	}

	return bundle, nil
}

// optimize runs the pattern optimizer over every function concurrently.
// Functions are independent, so the only shared state is the error group.
func (c *Compiler) optimize(unitName string, bundle *mir.Bundle) error {
	var opts []opt.Option
	if c.cfg.Opt.MaxPasses > 0 {
		opts = append(opts, opt.WithMaxPasses(c.cfg.Opt.MaxPasses))
	}
	opts = append(opts, opt.WithLogger(c.log))

	optimizer := opt.NewOptimizer(opts...)

	var eg errgroup.Group
	for _, fn := range bundle.Funcs {
		fn := fn

		eg.Go(func() error {
			return c.phase(unitName, func() {
				optimizer.Optimize(fn)
			})
		})
	}

	if err := eg.Wait(); err != nil {
		return errors.Wrapf(err, "optimizing %s", unitName)
	}

	return nil
}

func (c *Compiler) generate(unitName string, bundle *mir.Bundle, parts map[string]*partition.Result) (*codegen.Program, error) {
	var program *codegen.Program

	err := c.phase(unitName, func() {
		program = codegen.NewGenerator(bundle, parts).Generate()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "generating code for %s", unitName)
	}

	return program, nil
}

// -----------------------------------------------------------------------------

// Handle is an invocable compiled program bound to the compiler's runtime.
type Handle struct {
	artifact *Artifact
	compiler *Compiler
	jit      *jit.Driver
}

// Ingest compiles a unit and binds it to the runtime for invocation.
func (c *Compiler) Ingest(unit Unit) (*Handle, error) {
	artifact, err := c.Compile(unit)
	if err != nil {
		return nil, err
	}

	return c.Bind(artifact), nil
}

// IngestAST compiles a pre-built syntax tree and binds it for invocation.
func (c *Compiler) IngestAST(name string, prog *ast.Program) (*Handle, error) {
	artifact, err := c.CompileAST(name, prog)
	if err != nil {
		return nil, err
	}

	return c.Bind(artifact), nil
}

// IngestBundle compiles pre-lowered functions and binds them for
// invocation.
func (c *Compiler) IngestBundle(name string, bundle *mir.Bundle) (*Handle, error) {
	artifact, err := c.CompileBundle(name, bundle)
	if err != nil {
		return nil, err
	}

	return c.Bind(artifact), nil
}

// Bind wraps an already compiled artifact in an invocable handle.
func (c *Compiler) Bind(artifact *Artifact) *Handle {
	return &Handle{
		artifact: artifact,
		compiler: c,
		jit: jit.NewDriver(artifact.Bundle, artifact.Parts, c.cfg.JitConfig(),
			c.reg, jit.WithLogger(c.log)),
	}
}

// Artifact returns the compiled artifact behind the handle.
func (h *Handle) Artifact() *Artifact {
	return h.artifact
}

// Invoke runs the program entry point with the given runtime arguments.
// Every dataset the invocation allocates is released when it returns.
func (h *Handle) Invoke(ctx context.Context, args map[string]memory.Value) (memory.Value, error) {
	env := exec.NewEnv(ctx, h.compiler.Memory(), h.compiler.Service(), args, h.compiler.log)
	env.Regions = h.jit
	defer env.ReleaseAll()

	result, err := exec.NewVM(h.artifact.Program, env).Run()
	if err != nil {
		return memory.Value{}, errors.Wrapf(err, "invoking %s", h.artifact.Name)
	}

	return result, nil
}

// CallFunction runs a named function of the program.
func (h *Handle) CallFunction(ctx context.Context, name string, args []memory.Value, runtimeArgs map[string]memory.Value) (memory.Value, error) {
	env := exec.NewEnv(ctx, h.compiler.Memory(), h.compiler.Service(), runtimeArgs, h.compiler.log)
	env.Regions = h.jit
	defer env.ReleaseAll()

	result, err := exec.NewVM(h.artifact.Program, env).Call(name, args)
	if err != nil {
		return memory.Value{}, errors.Wrapf(err, "calling %s.%s", h.artifact.Name, name)
	}

	return result, nil
}
