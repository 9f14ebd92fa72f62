// Package extern connects programs to external data sources and sinks.  The
// interpreter and generated code never touch external systems directly; they
// go through a Service, which keeps dataset materialization behind the memory
// manager.
package extern

import (
	"context"

	"rillc/runtime/memory"
)

// Service performs the external data operations of a program.  Every method
// returns a generation-checked handle owned by the memory manager.
type Service interface {
	// Load materializes a named source into managed memory.
	Load(ctx context.Context, source, format string) (memory.Ref, error)

	// Save writes the dataset behind ref to a named sink and passes the
	// handle through.
	Save(ctx context.Context, ref memory.Ref, sink, format string) (memory.Ref, error)

	// Filter derives a dataset holding the rows of ref passing the
	// predicate.  A string predicate names a column: a row passes when that
	// column holds a truthy value.  Any other scalar applies uniformly,
	// keeping all rows when truthy and none otherwise.
	Filter(ctx context.Context, ref memory.Ref, pred memory.Value) (memory.Ref, error)

	// GroupBy derives a grouped dataset keyed by the named column.
	GroupBy(ctx context.Context, ref memory.Ref, key memory.Value) (memory.Ref, error)

	// MakeList materializes a literal list as a single-column dataset.
	MakeList(ctx context.Context, elems []memory.Value) (memory.Ref, error)

	// MakeMap materializes a literal map as a single-row dataset.
	MakeMap(ctx context.Context, keys []memory.Value, values []memory.Value) (memory.Ref, error)
}
