package memory

// workerBatch is how many free slots a worker grabs from the manager at once.
const workerBatch = 8

// Worker is a per-goroutine allocation front for the manager.  Each worker
// stashes a small batch of free slots so concurrent pipeline executions do
// not contend on the manager lock for every allocation.  Workers are not
// safe for concurrent use; each executing goroutine owns its own.
type Worker struct {
	m     *Manager
	local []int
}

// NewWorker creates an allocation worker bound to the manager.
func (m *Manager) NewWorker() *Worker {
	return &Worker{m: m}
}

// Alloc allocates from the worker's local free list when possible, falling
// back to the manager's shared allocation path.
func (w *Worker) Alloc(ds *Dataset) (Ref, error) {
	if len(w.local) == 0 {
		w.refill()
	}

	if n := len(w.local); n > 0 {
		slot := w.local[n-1]
		w.local = w.local[:n-1]

		w.m.mu.Lock()
		ref := w.m.fillLocked(slot, ds)
		w.m.mu.Unlock()

		return ref, nil
	}

	return w.m.Alloc(ds)
}

// refill moves up to a batch of free slots from the manager to the worker.
func (w *Worker) refill() {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()

	n := len(w.m.free)
	if n > workerBatch {
		n = workerBatch
	}

	if n > 0 {
		split := len(w.m.free) - n
		w.local = append(w.local, w.m.free[split:]...)
		w.m.free = w.m.free[:split]
	}
}

// Close returns any stashed slots to the manager.
func (w *Worker) Close() {
	w.m.mu.Lock()
	w.m.free = append(w.m.free, w.local...)
	w.m.mu.Unlock()

	w.local = nil
}
