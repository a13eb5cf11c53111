package service

import (
	"sync"

	"device_sync/internal/models"
)

// loadingCategory indexes the independent in-flight flags.
type loadingCategory int

const (
	loadingConnection loadingCategory = iota
	loadingControl
	loadingStats
	loadingExport
	loadingCategories
)

// loadingTracker counts in-flight work per category so overlapping dispatches
// keep a flag raised until the last one finishes.
type loadingTracker struct {
	mu       sync.Mutex
	counts   [loadingCategories]int
	onChange func()
}

func newLoadingTracker(onChange func()) *loadingTracker {
	return &loadingTracker{onChange: onChange}
}

// begin raises the flag and returns the matching release. Calling the release
// more than once has no further effect.
func (l *loadingTracker) begin(cat loadingCategory) (end func()) {
	l.mu.Lock()
	l.counts[cat]++
	raised := l.counts[cat] == 1
	l.mu.Unlock()
	if raised {
		l.changed()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.counts[cat]--
			lowered := l.counts[cat] == 0
			l.mu.Unlock()
			if lowered {
				l.changed()
			}
		})
	}
}

func (l *loadingTracker) snapshot() models.LoadingState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.LoadingState{
		Connection: l.counts[loadingConnection] > 0,
		Control:    l.counts[loadingControl] > 0,
		Stats:      l.counts[loadingStats] > 0,
		Export:     l.counts[loadingExport] > 0,
	}
}

func (l *loadingTracker) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}
