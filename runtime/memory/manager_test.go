package memory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rillc/report"
)

func testConfig(capacity int) Config {
	cfg := DefaultConfig()
	cfg.Capacity = capacity
	return cfg
}

func rows(n int) []Row {
	out := make([]Row, n)
	for i := range out {
		out[i] = Row{"value": IntValue(int64(i))}
	}

	return out
}

func TestAllocAndGet(t *testing.T) {
	m := NewManager(testConfig(4), nil)

	ref, err := m.Alloc(&Dataset{Source: "a", Rows: rows(3)})
	require.NoError(t, err)

	ds, err := m.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, "a", ds.Source)
	assert.Equal(t, 3, ds.NumRows())
	assert.Equal(t, 1, m.Resident())
}

func TestResidentCellsTracksFootprint(t *testing.T) {
	m := NewManager(testConfig(4), nil)
	assert.Equal(t, 0, m.ResidentCells())

	ref, err := m.Alloc(&Dataset{Source: "a", Rows: rows(3)})
	require.NoError(t, err)
	_, err = m.Alloc(&Dataset{Source: "b", Rows: rows(5)})
	require.NoError(t, err)

	// rows builds single-cell rows, so the footprint is the row count.
	assert.Equal(t, 8, m.ResidentCells())

	require.NoError(t, m.Release(ref))
	m.Reclaim()
	assert.Equal(t, 5, m.ResidentCells())
}

func TestStaleReferenceAfterReclaim(t *testing.T) {
	m := NewManager(testConfig(4), nil)

	ref, err := m.Alloc(&Dataset{Source: "a"})
	require.NoError(t, err)
	require.NoError(t, m.Release(ref))

	// The unreferenced dataset is discarded by reclamation; its handle
	// outlives it and must fail loudly, not alias a newer dataset.
	assert.Equal(t, 1, m.Reclaim())

	_, err = m.Get(ref)
	require.Error(t, err)
	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindStaleReference, kind)

	// The freed slot is reused under a new generation: the old handle still
	// misses.
	ref2, err := m.Alloc(&Dataset{Source: "b"})
	require.NoError(t, err)
	assert.Equal(t, ref.Slot, ref2.Slot)
	assert.NotEqual(t, ref.Gen, ref2.Gen)

	_, err = m.Get(ref)
	assert.Error(t, err)

	ds, err := m.Get(ref2)
	require.NoError(t, err)
	assert.Equal(t, "b", ds.Source)
}

func TestOutOfMemoryWithHeldReferences(t *testing.T) {
	m := NewManager(testConfig(2), nil)

	for i := 0; i < 2; i++ {
		_, err := m.Alloc(&Dataset{Source: "held"})
		require.NoError(t, err)
	}

	// Every slot is referenced: reclamation cannot help, so the allocation
	// fails with a catchable fault.
	_, err := m.Alloc(&Dataset{Source: "extra"})
	require.Error(t, err)
	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindOutOfMemory, kind)
}

func TestAllocReclaimsIdleUnderPressure(t *testing.T) {
	m := NewManager(testConfig(2), nil)

	held, err := m.Alloc(&Dataset{Source: "held"})
	require.NoError(t, err)

	idle, err := m.Alloc(&Dataset{Source: "idle"})
	require.NoError(t, err)
	require.NoError(t, m.Release(idle))

	// The table is full but one dataset is unreferenced: allocation reclaims
	// it instead of failing.
	ref, err := m.Alloc(&Dataset{Source: "new"})
	require.NoError(t, err)
	assert.Equal(t, idle.Slot, ref.Slot)

	_, err = m.Get(held)
	assert.NoError(t, err)
	_, err = m.Get(idle)
	assert.Error(t, err)
}

func TestReclaimDiscardsLeastRecentlyUsedFirst(t *testing.T) {
	mock := clock.NewMock()
	m := NewManager(testConfig(4), nil, WithClock(mock))

	old, err := m.Alloc(&Dataset{Source: "old"})
	require.NoError(t, err)
	require.NoError(t, m.Release(old))

	mock.Add(time.Minute)

	young, err := m.Alloc(&Dataset{Source: "young"})
	require.NoError(t, err)
	require.NoError(t, m.Release(young))

	mock.Add(time.Minute)

	// Touching the old dataset renews it: the young one is now the least
	// recently used.
	_, err = m.Get(old)
	require.NoError(t, err)

	m.Reclaim()

	// Both were idle, so both go, least recently used first.  Freed slots
	// stack up, so the most recently used slot comes back out first.
	ref, err := m.Alloc(&Dataset{Source: "next"})
	require.NoError(t, err)
	assert.Equal(t, old.Slot, ref.Slot)
}

func TestReclaimTrimsGroupsFirst(t *testing.T) {
	m := NewManager(testConfig(4), nil)

	ref, err := m.Alloc(&Dataset{
		Source:    "grouped",
		Rows:      rows(4),
		Groups:    map[string][]Row{"a": rows(2), "b": rows(2)},
		GroupKeys: []string{"a", "b"},
	})
	require.NoError(t, err)

	m.Reclaim()

	// The referenced dataset survives with its rows intact, but the derived
	// grouping is dropped.
	ds, err := m.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.NumRows())
	assert.Nil(t, ds.Groups)
	assert.Nil(t, ds.GroupKeys)
}

func TestSweepDiscardsIdlePastTTL(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(4)
	cfg.IdleTTL = 10 * time.Second
	m := NewManager(cfg, nil, WithClock(mock))

	idle, err := m.Alloc(&Dataset{Source: "idle"})
	require.NoError(t, err)
	require.NoError(t, m.Release(idle))

	held, err := m.Alloc(&Dataset{Source: "held"})
	require.NoError(t, err)

	// Within the TTL nothing is touched.
	mock.Add(5 * time.Second)
	assert.Equal(t, 0, m.Sweep())

	// Past the TTL only the unreferenced dataset goes.
	mock.Add(6 * time.Second)
	assert.Equal(t, 1, m.Sweep())

	_, err = m.Get(idle)
	assert.Error(t, err)
	_, err = m.Get(held)
	assert.NoError(t, err)
}

func TestRetainBlocksReclamation(t *testing.T) {
	m := NewManager(testConfig(2), nil)

	ref, err := m.Alloc(&Dataset{Source: "shared"})
	require.NoError(t, err)
	require.NoError(t, m.Retain(ref))

	// One release leaves the second reference holding the dataset.
	require.NoError(t, m.Release(ref))
	assert.Equal(t, 0, m.Reclaim())

	_, err = m.Get(ref)
	assert.NoError(t, err)

	require.NoError(t, m.Release(ref))
	assert.Equal(t, 1, m.Reclaim())
}

func TestRefOutOfRange(t *testing.T) {
	m := NewManager(testConfig(2), nil)

	_, err := m.Get(Ref{Slot: 99})
	require.Error(t, err)
	kind, ok := report.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, report.KindStaleReference, kind)
}

// -----------------------------------------------------------------------------

func TestWorkerAllocFromBatch(t *testing.T) {
	m := NewManager(testConfig(32), nil)

	// Seed the shared free list by discarding a batch of idle datasets.
	var refs []Ref
	for i := 0; i < 12; i++ {
		ref, err := m.Alloc(&Dataset{Source: "seed"})
		require.NoError(t, err)
		require.NoError(t, m.Release(ref))
		refs = append(refs, ref)
	}
	require.Equal(t, 12, m.Reclaim())

	w := m.NewWorker()
	defer w.Close()

	// The worker grabs a batch and serves allocations from it; the slots it
	// hands out come from the seeded free list.
	seeded := make(map[int]bool)
	for _, ref := range refs {
		seeded[ref.Slot] = true
	}

	for i := 0; i < workerBatch; i++ {
		ref, err := w.Alloc(&Dataset{Source: "w"})
		require.NoError(t, err)
		assert.True(t, seeded[ref.Slot])
	}

	// Allocations past the batch fall back to the shared path.
	_, err := w.Alloc(&Dataset{Source: "overflow"})
	assert.NoError(t, err)
}

func TestWorkerCloseReturnsSlots(t *testing.T) {
	m := NewManager(testConfig(32), nil)

	for i := 0; i < 8; i++ {
		ref, err := m.Alloc(&Dataset{Source: "seed"})
		require.NoError(t, err)
		require.NoError(t, m.Release(ref))
	}
	m.Reclaim()

	w := m.NewWorker()
	ref, err := w.Alloc(&Dataset{Source: "w"})
	require.NoError(t, err)
	w.Close()

	// The handle minted through the worker stays valid after the worker is
	// gone; only its unused stash went back.
	_, err = m.Get(ref)
	assert.NoError(t, err)
}

func TestAllocatorFromContext(t *testing.T) {
	m := NewManager(testConfig(4), nil)
	w := m.NewWorker()
	defer w.Close()

	ctx := WithAllocator(context.Background(), w)
	assert.Same(t, w, AllocatorFrom(ctx, m))

	// A context carrying no allocator falls back.
	assert.Same(t, m, AllocatorFrom(context.Background(), m))
}

func TestValueEqualsAndTruthy(t *testing.T) {
	assert.True(t, IntValue(3).Equals(IntValue(3)))
	assert.False(t, IntValue(3).Equals(IntValue(4)))
	assert.False(t, IntValue(3).Equals(StringValue("3")))

	assert.True(t, IntValue(1).Truthy())
	assert.False(t, IntValue(0).Truthy())
	assert.True(t, StringValue("x").Truthy())
	assert.False(t, StringValue("").Truthy())
	assert.False(t, Unit().Truthy())
}
