package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rillc/report"
)

// Config tunes the memory manager.
type Config struct {
	// Capacity is the maximum number of resident dataset slots.
	Capacity int

	// IdleTTL is how long an unreferenced dataset stays resident before the
	// background sweep discards it.
	IdleTTL time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration

	// AllocRetries bounds how many reclamation rounds an allocation attempts
	// before reporting out of memory.
	AllocRetries int
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:      1024,
		IdleTTL:       30 * time.Second,
		SweepInterval: 5 * time.Second,
		AllocRetries:  2,
	}
}

// slotEntry is the state of one dataset slot.
type slotEntry struct {
	data    *Dataset
	gen     uint32
	refs    int
	live    bool
	cells   int
	lastUse time.Time
}

// Manager owns every runtime dataset.  Datasets are addressed only through
// generation-checked Refs; the manager reclaims memory in three phases under
// pressure: trim derived data, reuse freed slots, discard idle datasets.
type Manager struct {
	mu    sync.Mutex
	slots []slotEntry
	free  []int

	cfg   Config
	clock clock.Clock
	log   *zap.Logger

	stop chan struct{}
	done chan struct{}

	allocsTotal   prometheus.Counter
	discardsTotal prometheus.Counter
	trimsTotal    prometheus.Counter
	staleTotal    prometheus.Counter
	oomTotal      prometheus.Counter
	residentGauge prometheus.Gauge
	cellsGauge    prometheus.Gauge
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock, used by tests to drive the sweep
// deterministically.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger attaches a logger to the manager.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a memory manager and registers its metrics.  A nil
// registerer skips metric registration.
func NewManager(cfg Config, reg prometheus.Registerer, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		clock: clock.New(),
		log:   zap.NewNop(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),

		allocsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "memory", Name: "allocs_total",
			Help: "Total dataset slot allocations.",
		}),
		discardsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "memory", Name: "discards_total",
			Help: "Total datasets discarded during reclamation.",
		}),
		trimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "memory", Name: "trims_total",
			Help: "Total datasets whose derived data was trimmed.",
		}),
		staleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "memory", Name: "stale_refs_total",
			Help: "Total accesses through stale generation handles.",
		}),
		oomTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rill", Subsystem: "memory", Name: "oom_total",
			Help: "Total allocations that failed after reclamation.",
		}),
		residentGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rill", Subsystem: "memory", Name: "resident_datasets",
			Help: "Datasets currently resident.",
		}),
		cellsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rill", Subsystem: "memory", Name: "resident_cells",
			Help: "Estimated cell footprint of resident datasets.",
		}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if reg != nil {
		reg.MustRegister(m.allocsTotal, m.discardsTotal, m.trimsTotal,
			m.staleTotal, m.oomTotal, m.residentGauge, m.cellsGauge)
	}

	return m
}

// Start runs the background reclamation sweep until the context is cancelled
// or Close is called.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		ticker := m.clock.Ticker(m.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
}

// Close stops the background sweep.
func (m *Manager) Close() {
	close(m.stop)
	<-m.done
}

// -----------------------------------------------------------------------------

// Alloc places a dataset into a slot and returns its handle.  Under pressure
// it runs bounded reclamation rounds; when those free nothing it reports out
// of memory, which callers surface as a catchable runtime fault.
func (m *Manager) Alloc(ds *Dataset) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if ref, ok := m.allocLocked(ds); ok {
			return ref, nil
		}

		if attempt >= m.cfg.AllocRetries {
			break
		}

		if m.reclaimLocked() == 0 {
			break
		}
	}

	m.oomTotal.Inc()
	m.log.Warn("allocation failed after reclamation",
		zap.Int("capacity", m.cfg.Capacity),
		zap.String("source", ds.Source))

	return Ref{}, report.Fault(report.KindOutOfMemory,
		"dataset memory exhausted (%d slots resident)", m.cfg.Capacity)
}

// allocLocked tries one allocation without reclaiming: first a freed slot is
// reused, then the slot table grows up to capacity.
func (m *Manager) allocLocked(ds *Dataset) (Ref, bool) {
	if n := len(m.free); n > 0 {
		slot := m.free[n-1]
		m.free = m.free[:n-1]
		return m.fillLocked(slot, ds), true
	}

	if len(m.slots) < m.cfg.Capacity {
		m.slots = append(m.slots, slotEntry{})
		return m.fillLocked(len(m.slots)-1, ds), true
	}

	return Ref{}, false
}

func (m *Manager) fillLocked(slot int, ds *Dataset) Ref {
	entry := &m.slots[slot]
	entry.data = ds
	entry.refs = 1
	entry.live = true
	entry.cells = ds.SizeHint()
	entry.lastUse = m.clock.Now()

	m.allocsTotal.Inc()
	m.residentGauge.Inc()
	m.cellsGauge.Add(float64(entry.cells))

	return Ref{Slot: slot, Gen: entry.gen}
}

// Get resolves a handle to its dataset.  A handle whose generation no longer
// matches its slot is stale: the dataset it referred to has been reclaimed.
func (m *Manager) Get(ref Ref) (*Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.entryLocked(ref)
	if err != nil {
		return nil, err
	}

	entry.lastUse = m.clock.Now()
	return entry.data, nil
}

// Retain adds a reference to the dataset behind ref.
func (m *Manager) Retain(ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.entryLocked(ref)
	if err != nil {
		return err
	}

	entry.refs++
	return nil
}

// Release drops a reference.  A dataset at zero references stays resident as
// a reclamation candidate; it is not freed eagerly.
func (m *Manager) Release(ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.entryLocked(ref)
	if err != nil {
		return err
	}

	if entry.refs > 0 {
		entry.refs--
	}

	return nil
}

func (m *Manager) entryLocked(ref Ref) (*slotEntry, error) {
	if ref.Slot < 0 || ref.Slot >= len(m.slots) {
		m.staleTotal.Inc()
		return nil, report.Fault(report.KindStaleReference,
			"dataset handle %s out of range", ref)
	}

	entry := &m.slots[ref.Slot]
	if !entry.live || entry.gen != ref.Gen {
		m.staleTotal.Inc()
		return nil, report.Fault(report.KindStaleReference,
			"dataset handle %s is stale", ref)
	}

	return entry, nil
}

// -----------------------------------------------------------------------------

// reclaimLocked runs one reclamation round and returns how many slots it made
// available.  Trimming comes first since it keeps datasets usable; discarding
// ends the life of idle datasets, oldest first.
func (m *Manager) reclaimLocked() int {
	freed := 0

	// Phase one: trim derived data off every resident dataset.  Groupings
	// are recomputable from the rows, so dropping them loses nothing.
	for i := range m.slots {
		entry := &m.slots[i]
		if entry.live && entry.data.Groups != nil {
			entry.data.Groups = nil
			entry.data.GroupKeys = nil
			m.trimsTotal.Inc()
		}
	}

	// Phase two: discard unreferenced datasets in least-recently-used order.
	var idle []int
	for i := range m.slots {
		if m.slots[i].live && m.slots[i].refs == 0 {
			idle = append(idle, i)
		}
	}

	sort.Slice(idle, func(a, b int) bool {
		return m.slots[idle[a]].lastUse.Before(m.slots[idle[b]].lastUse)
	})

	for _, slot := range idle {
		m.discardLocked(slot)
		freed++
	}

	if freed > 0 {
		m.log.Debug("reclaimed dataset slots", zap.Int("freed", freed))
	}

	return freed
}

// discardLocked frees a slot: the generation bump invalidates outstanding
// handles and the slot joins the free list for reuse.
func (m *Manager) discardLocked(slot int) {
	entry := &m.slots[slot]
	entry.data = nil
	entry.live = false
	entry.gen++
	m.free = append(m.free, slot)

	m.discardsTotal.Inc()
	m.residentGauge.Dec()
	m.cellsGauge.Sub(float64(entry.cells))
	entry.cells = 0
}

// Sweep discards unreferenced datasets idle past the TTL.  The background
// schedule calls this; fault recovery may call it directly to relieve
// pressure between retry attempts.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-m.cfg.IdleTTL)

	freed := 0
	for i := range m.slots {
		entry := &m.slots[i]
		if entry.live && entry.refs == 0 && entry.lastUse.Before(cutoff) {
			m.discardLocked(i)
			freed++
		}
	}

	return freed
}

// Reclaim runs a full reclamation round outside the allocation path.
func (m *Manager) Reclaim() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reclaimLocked()
}

// ResidentCells returns the estimated cell footprint of live datasets, as
// recorded from each dataset's size hint at allocation time.
func (m *Manager) ResidentCells() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cells := 0
	for i := range m.slots {
		if m.slots[i].live {
			cells += m.slots[i].cells
		}
	}

	return cells
}

// Resident returns the number of live dataset slots.
func (m *Manager) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for i := range m.slots {
		if m.slots[i].live {
			count++
		}
	}

	return count
}
