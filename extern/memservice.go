package extern

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rillc/report"
	"rillc/runtime/memory"
)

// MemService is an in-memory Service backed by registered fixtures.  It is
// the default service for local runs and tests; sinks record every save with
// a unique receipt so writes can be inspected afterwards.
type MemService struct {
	mem *memory.Manager
	log *zap.Logger

	mu      sync.RWMutex
	sources map[string][]memory.Row
	sinks   map[string][]SaveReceipt
}

// SaveReceipt records one completed save.
type SaveReceipt struct {
	ID     string
	Format string
	Rows   []memory.Row
}

// NewMemService creates an in-memory service over the given manager.
func NewMemService(mem *memory.Manager, log *zap.Logger) *MemService {
	if log == nil {
		log = zap.NewNop()
	}

	return &MemService{
		mem:     mem,
		log:     log,
		sources: make(map[string][]memory.Row),
		sinks:   make(map[string][]SaveReceipt),
	}
}

// AddSource registers rows under a source name.
func (s *MemService) AddSource(name string, rows []memory.Row) {
	s.mu.Lock()
	s.sources[name] = rows
	s.mu.Unlock()
}

// Saved returns the receipts recorded for a sink.
func (s *MemService) Saved(sink string) []SaveReceipt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sinks[sink]
}

// alloc places a dataset through the invocation's allocation worker when the
// context carries one, falling back to the shared manager.
func (s *MemService) alloc(ctx context.Context, ds *memory.Dataset) (memory.Ref, error) {
	return memory.AllocatorFrom(ctx, s.mem).Alloc(ds)
}

// -----------------------------------------------------------------------------

func (s *MemService) Load(ctx context.Context, source, format string) (memory.Ref, error) {
	if err := ctx.Err(); err != nil {
		return memory.Ref{}, err
	}

	s.mu.RLock()
	rows, ok := s.sources[source]
	s.mu.RUnlock()

	if !ok {
		return memory.Ref{}, report.Fault(report.KindDataFault,
			"unknown data source %q", source)
	}

	// Copy the fixture rows so downstream mutation never leaks back into
	// the registry.
	copied := make([]memory.Row, len(rows))
	for i, row := range rows {
		dup := make(memory.Row, len(row))
		for k, v := range row {
			dup[k] = v
		}
		copied[i] = dup
	}

	ds := &memory.Dataset{
		Source: fmt.Sprintf("%s#%s", source, uuid.NewString()[:8]),
		Rows:   copied,
	}

	s.log.Debug("loaded source",
		zap.String("source", source),
		zap.String("format", format),
		zap.Int("rows", len(copied)))

	return s.alloc(ctx, ds)
}

func (s *MemService) Save(ctx context.Context, ref memory.Ref, sink, format string) (memory.Ref, error) {
	if err := ctx.Err(); err != nil {
		return memory.Ref{}, err
	}

	ds, err := s.mem.Get(ref)
	if err != nil {
		return memory.Ref{}, err
	}

	receipt := SaveReceipt{
		ID:     uuid.NewString(),
		Format: format,
		Rows:   ds.Rows,
	}

	s.mu.Lock()
	s.sinks[sink] = append(s.sinks[sink], receipt)
	s.mu.Unlock()

	s.log.Debug("saved dataset",
		zap.String("sink", sink),
		zap.String("receipt", receipt.ID),
		zap.Int("rows", len(ds.Rows)))

	return ref, nil
}

func (s *MemService) Filter(ctx context.Context, ref memory.Ref, pred memory.Value) (memory.Ref, error) {
	if err := ctx.Err(); err != nil {
		return memory.Ref{}, err
	}

	ds, err := s.mem.Get(ref)
	if err != nil {
		return memory.Ref{}, err
	}

	var kept []memory.Row
	if pred.Kind == memory.KindString {
		for _, row := range ds.Rows {
			if row[pred.Str].Truthy() {
				kept = append(kept, row)
			}
		}
	} else if pred.Truthy() {
		kept = append(kept, ds.Rows...)
	}

	return s.alloc(ctx, &memory.Dataset{
		Source: ds.Source + "|filter",
		Rows:   kept,
	})
}

func (s *MemService) GroupBy(ctx context.Context, ref memory.Ref, key memory.Value) (memory.Ref, error) {
	if err := ctx.Err(); err != nil {
		return memory.Ref{}, err
	}

	if key.Kind != memory.KindString {
		return memory.Ref{}, report.Fault(report.KindDataFault,
			"group-by key must be a column name, got %s", key)
	}

	ds, err := s.mem.Get(ref)
	if err != nil {
		return memory.Ref{}, err
	}

	grouped := &memory.Dataset{
		Source: ds.Source + "|groupby",
		Rows:   ds.Rows,
		Groups: make(map[string][]memory.Row),
	}

	for _, row := range ds.Rows {
		groupKey := row[key.Str].String()
		if _, seen := grouped.Groups[groupKey]; !seen {
			grouped.GroupKeys = append(grouped.GroupKeys, groupKey)
		}

		grouped.Groups[groupKey] = append(grouped.Groups[groupKey], row)
	}

	return s.alloc(ctx, grouped)
}

func (s *MemService) MakeList(ctx context.Context, elems []memory.Value) (memory.Ref, error) {
	if err := ctx.Err(); err != nil {
		return memory.Ref{}, err
	}

	rows := make([]memory.Row, len(elems))
	for i, elem := range elems {
		rows[i] = memory.Row{"value": elem}
	}

	return s.alloc(ctx, &memory.Dataset{Source: "list", Rows: rows})
}

func (s *MemService) MakeMap(ctx context.Context, keys []memory.Value, values []memory.Value) (memory.Ref, error) {
	if err := ctx.Err(); err != nil {
		return memory.Ref{}, err
	}

	row := make(memory.Row, len(keys))
	for i, key := range keys {
		row[key.String()] = values[i]
	}

	return s.alloc(ctx, &memory.Dataset{Source: "map", Rows: []memory.Row{row}})
}
