package export

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/logflow/internal/metrics"
	"github.com/gosight/logflow/internal/tracker"
)

// Source is anything that exposes the tracker change feed
type Source interface {
	Subscribe(buffer int) (<-chan tracker.Change, func())
}

// Forwarder copies tracked events from the change feed to a sink. A failing
// sink is logged and counted; tracking itself never sees the error.
type Forwarder struct {
	source  Source
	sink    Sink
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewForwarder(source Source, sink Sink, m *metrics.Metrics) *Forwarder {
	return &Forwarder{
		source:  source,
		sink:    sink,
		metrics: m,
		timeout: 5 * time.Second,
	}
}

// Run forwards until ctx is done or the feed is closed
func (f *Forwarder) Run(ctx context.Context) {
	changes, cancel := f.source.Subscribe(1024)
	defer cancel()

	log.Info().Str("sink", f.sink.Name()).Msg("Event forwarder started")
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				log.Info().Str("sink", f.sink.Name()).Msg("Change feed closed, event forwarder stopped")
				return
			}
			if c.Kind != tracker.ChangeEventTracked || c.Event == nil {
				continue
			}
			f.forward(ctx, c)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, c tracker.Change) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.sink.Publish(ctx, *c.Event); err != nil {
		f.metrics.ExportFailure(f.sink.Name())
		log.Error().
			Err(err).
			Str("sink", f.sink.Name()).
			Str("event_id", c.Event.ID).
			Msg("Failed to export event")
	}
}
