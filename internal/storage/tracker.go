package storage

import "sync"

// State is the persistence state of an aggregate.
type State int

const (
	// Clean: everything is on disk.
	Clean State = iota
	// Dirty: there are unsaved mutations and no write in flight.
	Dirty
	// Saving: a snapshot is being written; nothing changed since it was taken.
	Saving
	// DirtySaving: a write is in flight and the aggregate changed after its
	// snapshot was taken.
	DirtySaving
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	case DirtySaving:
		return "dirty_saving"
	default:
		return "unknown"
	}
}

// Tracker holds the dirty/saving state of one aggregate. The zero value is
// Clean and ready to use.
type Tracker struct {
	mu    sync.Mutex
	state State
}

// MarkDirty records a mutation.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Clean:
		t.state = Dirty
	case Saving:
		t.state = DirtySaving
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SaveCompleted ends the in-flight save. Callers invoke it after Save
// reported WriteSuccessful.
func (t *Tracker) SaveCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Saving:
		t.state = Clean
	case DirtySaving:
		t.state = Dirty
	}
}

// begin moves Dirty to Saving and returns the state observed before the
// attempt.
func (t *Tracker) begin() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.state
	if prev == Dirty {
		t.state = Saving
	}
	return prev
}

// fail abandons the in-flight save. The snapshot never reached disk, so the
// aggregate is dirty again.
func (t *Tracker) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Saving || t.state == DirtySaving {
		t.state = Dirty
	}
}
