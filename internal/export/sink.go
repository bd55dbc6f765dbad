package export

import (
	"context"
	"errors"

	"github.com/gosight/logflow/internal/event"
)

// Sink receives every tracked event. Implementations stream events to an
// external system; they are not a source of truth and nothing reads back.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e event.Event) error
	Close() error
}

// Multi fans an event out to several sinks
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, e event.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
