package memory

import "context"

// Allocator places a dataset into a managed slot.  Manager is the shared
// allocator; Worker is a per-goroutine front over it.
type Allocator interface {
	Alloc(ds *Dataset) (Ref, error)
}

type allocatorKey struct{}

// WithAllocator returns a context whose dataset allocations route through a.
// The execution environment stashes its worker here so the data service
// allocates through the invocation's own free list.
func WithAllocator(ctx context.Context, a Allocator) context.Context {
	return context.WithValue(ctx, allocatorKey{}, a)
}

// AllocatorFrom returns the allocator carried by ctx, or fallback when the
// context carries none.
func AllocatorFrom(ctx context.Context, fallback Allocator) Allocator {
	if a, ok := ctx.Value(allocatorKey{}).(Allocator); ok {
		return a
	}

	return fallback
}
