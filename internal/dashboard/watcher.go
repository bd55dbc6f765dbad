package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
	"github.com/gosight/logflow/internal/metrics"
	"github.com/gosight/logflow/internal/tracker"
)

// Source is the part of the tracker the watcher reads from
type Source interface {
	Snapshot() event.Snapshot
	Subscribe(buffer int) (<-chan tracker.Change, func())
}

// Watcher keeps an up-to-date dashboard summary. It recomputes when the
// tracker reports a change instead of on a timer, and coalesces a burst of
// changes arriving within the debounce interval into one recomputation.
type Watcher struct {
	source   Source
	debounce time.Duration
	loc      *time.Location
	metrics  *metrics.Metrics
	now      func() time.Time

	mu         sync.RWMutex
	latest     analytics.Summary
	recomputes int
}

// NewWatcher creates a watcher over source
func NewWatcher(source Source, cfg config.DashboardConfig, m *metrics.Metrics) *Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		source:   source,
		debounce: debounce,
		loc:      cfg.Location(),
		metrics:  m,
		now:      time.Now,
	}
}

// Run recomputes once, then on every burst of changes until ctx is done or
// the tracker closes its change feed.
func (w *Watcher) Run(ctx context.Context) {
	changes, cancel := w.source.Subscribe(64)
	defer cancel()

	w.Refresh()
	log.Info().Dur("debounce", w.debounce).Msg("Dashboard watcher started")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Dashboard watcher stopped")
			return
		case _, ok := <-changes:
			if !ok {
				timer.Stop()
				w.Refresh()
				log.Info().Msg("Change feed closed, dashboard watcher stopped")
				return
			}
			if !armed {
				timer.Reset(w.debounce)
				armed = true
			}
		case <-timer.C:
			armed = false
			w.Refresh()
		}
	}
}

// Refresh recomputes the summary from a fresh snapshot and returns it
func (w *Watcher) Refresh() analytics.Summary {
	start := time.Now()
	summary := analytics.Summarize(w.source.Snapshot(), w.now(), w.loc)
	w.metrics.ObserveRecompute(time.Since(start))

	w.mu.Lock()
	w.latest = summary
	w.recomputes++
	w.mu.Unlock()

	log.Debug().
		Int("events", summary.TotalEvents).
		Int("sessions", summary.Sessions.Sessions).
		Dur("duration", time.Since(start)).
		Msg("Dashboard recomputed")
	return summary
}

// Latest returns the most recent summary
func (w *Watcher) Latest() analytics.Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// Recomputes reports how many times the summary has been computed
func (w *Watcher) Recomputes() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.recomputes
}
