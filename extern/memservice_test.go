package extern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/report"
	"rillc/runtime/memory"
)

func newTestService(t *testing.T) (*MemService, *memory.Manager) {
	t.Helper()

	mem := memory.NewManager(memory.DefaultConfig(), nil)
	return NewMemService(mem, nil), mem
}

func eventRows() []memory.Row {
	return []memory.Row{
		{"region": memory.StringValue("east"), "score": memory.IntValue(8), "flagged": memory.BoolValue(true)},
		{"region": memory.StringValue("west"), "score": memory.IntValue(0), "flagged": memory.BoolValue(false)},
		{"region": memory.StringValue("east"), "score": memory.IntValue(3), "flagged": memory.BoolValue(true)},
	}
}

func TestLoadCopiesFixtureRows(t *testing.T) {
	svc, mem := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx := context.Background()

	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)

	ds, err := mem.Get(ref)
	require.NoError(t, err)
	require.Equal(t, 3, ds.NumRows())

	// Mutating the loaded dataset leaves the registered fixture untouched.
	ds.Rows[0]["region"] = memory.StringValue("mutated")

	ref2, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)
	ds2, err := mem.Get(ref2)
	require.NoError(t, err)
	assert.Equal(t, memory.StringValue("east"), ds2.Rows[0]["region"])

	// Each load is a distinct dataset instance.
	assert.NotEqual(t, ds.Source, ds2.Source)
}

func TestLoadUnknownSource(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Load(context.Background(), "missing", "csv")
	require.Error(t, err)
	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindDataFault, kind)
}

func TestFilterByColumnTruthiness(t *testing.T) {
	svc, mem := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx := context.Background()
	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)

	// A string predicate names a column: rows with a truthy value survive.
	filtered, err := svc.Filter(ctx, ref, memory.StringValue("flagged"))
	require.NoError(t, err)

	ds, err := mem.Get(filtered)
	require.NoError(t, err)
	require.Equal(t, 2, ds.NumRows())
	for _, row := range ds.Rows {
		assert.Equal(t, memory.StringValue("east"), row["region"])
	}
}

func TestFilterByScalarPredicate(t *testing.T) {
	svc, mem := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx := context.Background()
	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)

	// A truthy scalar keeps everything; a falsy one keeps nothing.
	all, err := svc.Filter(ctx, ref, memory.IntValue(1))
	require.NoError(t, err)
	ds, err := mem.Get(all)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.NumRows())

	none, err := svc.Filter(ctx, ref, memory.IntValue(0))
	require.NoError(t, err)
	ds, err = mem.Get(none)
	require.NoError(t, err)
	assert.Equal(t, 0, ds.NumRows())
}

func TestGroupByBuildsGroupsInFirstSeenOrder(t *testing.T) {
	svc, mem := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx := context.Background()
	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)

	grouped, err := svc.GroupBy(ctx, ref, memory.StringValue("region"))
	require.NoError(t, err)

	ds, err := mem.Get(grouped)
	require.NoError(t, err)
	assert.Equal(t, []string{"east", "west"}, ds.GroupKeys)
	assert.Len(t, ds.Groups["east"], 2)
	assert.Len(t, ds.Groups["west"], 1)

	// The ungrouped rows stay addressable alongside the grouping.
	assert.Equal(t, 3, ds.NumRows())
}

func TestGroupByNonStringKey(t *testing.T) {
	svc, _ := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx := context.Background()
	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)

	_, err = svc.GroupBy(ctx, ref, memory.IntValue(3))
	require.Error(t, err)
	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindDataFault, kind)
}

func TestSaveRecordsReceipts(t *testing.T) {
	svc, _ := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx := context.Background()
	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)

	// Save passes the handle through so pipelines can keep chaining.
	out, err := svc.Save(ctx, ref, "out", "csv")
	require.NoError(t, err)
	assert.Equal(t, ref, out)

	_, err = svc.Save(ctx, ref, "out", "json")
	require.NoError(t, err)

	receipts := svc.Saved("out")
	require.Len(t, receipts, 2)
	assert.Equal(t, "csv", receipts[0].Format)
	assert.Equal(t, "json", receipts[1].Format)
	assert.Len(t, receipts[0].Rows, 3)
	assert.NotEqual(t, receipts[0].ID, receipts[1].ID)

	assert.Empty(t, svc.Saved("elsewhere"))
}

func TestMakeListAndMap(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	listRef, err := svc.MakeList(ctx, []memory.Value{
		memory.IntValue(1), memory.IntValue(2), memory.IntValue(3),
	})
	require.NoError(t, err)

	ds, err := mem.Get(listRef)
	require.NoError(t, err)
	require.Equal(t, 3, ds.NumRows())
	assert.Equal(t, memory.IntValue(2), ds.Rows[1]["value"])

	mapRef, err := svc.MakeMap(ctx,
		[]memory.Value{memory.StringValue("a"), memory.StringValue("b")},
		[]memory.Value{memory.IntValue(1), memory.IntValue(2)},
	)
	require.NoError(t, err)

	ds, err = mem.Get(mapRef)
	require.NoError(t, err)
	require.Equal(t, 1, ds.NumRows())
	assert.Equal(t, memory.IntValue(1), ds.Rows[0]["a"])
	assert.Equal(t, memory.IntValue(2), ds.Rows[0]["b"])
}

type countingAllocator struct {
	mem    *memory.Manager
	allocs int
}

func (c *countingAllocator) Alloc(ds *memory.Dataset) (memory.Ref, error) {
	c.allocs++
	return c.mem.Alloc(ds)
}

func TestServiceAllocatesThroughContextAllocator(t *testing.T) {
	svc, mem := newTestService(t)
	svc.AddSource("events", eventRows())

	counting := &countingAllocator{mem: mem}
	ctx := memory.WithAllocator(context.Background(), counting)

	ref, err := svc.Load(ctx, "events", "csv")
	require.NoError(t, err)
	_, err = svc.Filter(ctx, ref, memory.StringValue("flagged"))
	require.NoError(t, err)
	assert.Equal(t, 2, counting.allocs)

	// A bare context allocates through the shared manager instead.
	_, err = svc.Load(context.Background(), "events", "csv")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.allocs)
}

func TestServiceHonorsContextCancellation(t *testing.T) {
	svc, _ := newTestService(t)
	svc.AddSource("events", eventRows())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Load(ctx, "events", "csv")
	assert.ErrorIs(t, err, context.Canceled)
}
