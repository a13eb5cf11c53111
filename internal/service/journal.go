package service

import (
	"sync"
	"time"

	"device_sync/internal/models"

	"github.com/google/uuid"
)

// JournalCapacity bounds the event journal.
const JournalCapacity = 50

// Journal is a bounded, newest-first log of observed activity. It is a
// diagnostics aid and never a source of truth for device state.
type Journal struct {
	mu       sync.Mutex
	entries  []models.Event
	onChange func()
	now      func() time.Time
}

func NewJournal(onChange func()) *Journal {
	return &Journal{
		entries:  make([]models.Event, 0, JournalCapacity),
		onChange: onChange,
		now:      time.Now,
	}
}

// Append builds and records a new event.
func (j *Journal) Append(typ models.EventType, source models.EventSource, payload any) models.Event {
	return j.Record(models.Event{Type: typ, Source: source, Payload: payload})
}

// Record inserts e at the head, filling ID and Timestamp when missing, and
// evicts from the tail past JournalCapacity.
func (j *Journal) Record(e models.Event) models.Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = j.now().UTC()
	}

	j.mu.Lock()
	if len(j.entries) < JournalCapacity {
		j.entries = append(j.entries, models.Event{})
	}
	copy(j.entries[1:], j.entries[:len(j.entries)-1])
	j.entries[0] = e
	j.mu.Unlock()

	j.changed()
	return e
}

// List returns a copy, newest first.
func (j *Journal) List() []models.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.Event, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Clear drops every entry.
func (j *Journal) Clear() {
	j.mu.Lock()
	j.entries = j.entries[:0]
	j.mu.Unlock()
	j.changed()
}

func (j *Journal) changed() {
	if j.onChange != nil {
		j.onChange()
	}
}
