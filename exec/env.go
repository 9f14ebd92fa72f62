// Package exec executes compiled programs: a bytecode virtual machine for
// generated code and a direct IR interpreter used both as the reference
// evaluator and as the fallback when JIT compilation is unavailable.
package exec

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"rillc/codegen"
	"rillc/extern"
	"rillc/runtime/memory"
)

// RegionRunner executes a deferred code region over a live frame.  The JIT
// driver implements it; keeping it an interface here leaves execution free of
// any compilation machinery.
type RegionRunner interface {
	EnterRegion(env *Env, prog *codegen.Program, region int, frame []memory.Value) (memory.Value, error)
}

// Env is the shared execution environment of one program invocation.
type Env struct {
	Ctx  context.Context
	Mem  *memory.Manager
	Svc  extern.Service
	Args map[string]memory.Value

	// Regions handles transfers into deferred code.  Nil when the program
	// contains none.
	Regions RegionRunner

	Log *zap.Logger

	worker *memory.Worker

	mu        sync.Mutex
	allocated []memory.Ref
}

// NewEnv creates an execution environment.
func NewEnv(ctx context.Context, mem *memory.Manager, svc extern.Service, args map[string]memory.Value, log *zap.Logger) *Env {
	if log == nil {
		log = zap.NewNop()
	}

	// Each invocation allocates through its own worker so concurrent
	// invocations do not contend on the manager lock per allocation.
	worker := mem.NewWorker()

	return &Env{
		Ctx:    memory.WithAllocator(ctx, worker),
		Mem:    mem,
		Svc:    svc,
		Args:   args,
		Log:    log,
		worker: worker,
	}
}

// Track records a handle allocated during this invocation.  The invocation
// owns every handle it allocates and releases them all when it completes.
func (env *Env) Track(ref memory.Ref) {
	env.mu.Lock()
	env.allocated = append(env.allocated, ref)
	env.mu.Unlock()
}

// ReleaseAll drops the invocation's references, returning its datasets to
// the reclamation pool and its worker's stashed slots to the manager.
func (env *Env) ReleaseAll() {
	env.worker.Close()

	env.mu.Lock()
	refs := env.allocated
	env.allocated = nil
	env.mu.Unlock()

	for _, ref := range refs {
		// Stale handles were already reclaimed; nothing to release.
		_ = env.Mem.Release(ref)
	}
}
