// Package progress reduces named encode phase snapshots into one percent.
package progress

import "sync"

// Snapshot is the latest reported state of one named encode phase. A zero
// Total means the phase length is unknown and the phase weighs as its own
// current index.
type Snapshot struct {
	Current int64
	Total   int64
}

// Aggregator records the latest snapshot per phase and notifies an observer
// with the reduced 0-100 percent. Repeated updates to a known phase never
// emit below the last value; adding a new phase reweights freely.
type Aggregator struct {
	mu      sync.Mutex
	phases  map[string]Snapshot
	emitted int
	started bool
	notify  func(percent int)
}

// NewAggregator creates an aggregator reporting to notify. A nil notify
// still accumulates state for Percent.
func NewAggregator(notify func(percent int)) *Aggregator {
	return &Aggregator{
		phases: make(map[string]Snapshot),
		notify: notify,
	}
}

// Update records the latest snapshot for a phase, recomputes the aggregate,
// and emits it when it is new or changed. No emission happens before the
// first snapshot arrives.
func (a *Aggregator) Update(phase string, current, total int64) {
	a.mu.Lock()
	_, known := a.phases[phase]
	a.phases[phase] = Snapshot{Current: current, Total: total}

	percent := reduce(a.phases)
	if known && percent < a.emitted {
		// Stale or duplicate snapshot for a stable phase set: keep the
		// last emitted value instead of regressing.
		percent = a.emitted
	}

	emit := !a.started || percent != a.emitted
	a.started = true
	a.emitted = percent
	notify := a.notify
	a.mu.Unlock()

	if emit && notify != nil {
		notify(percent)
	}
}

// Percent returns the last emitted value, 0 before any snapshot.
func (a *Aggregator) Percent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emitted
}

// reduce applies floor(100 * sum(min(cur, total)) / sum(total)) with
// unknown totals substituted by the phase's own current index.
func reduce(phases map[string]Snapshot) int {
	var completed, grand int64
	for _, s := range phases {
		total := s.Total
		if total == 0 {
			total = s.Current
		}
		current := s.Current
		if current > total {
			current = total
		}
		completed += current
		grand += total
	}
	if grand == 0 {
		grand = 1
	}
	return int(completed * 100 / grand)
}
