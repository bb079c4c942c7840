package events

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

// Sink matches the engine's event sink without importing it.
type Sink interface {
	Publish(ctx context.Context, ev models.DispatchEvent) error
}

// MultiSink fans one event out to several sinks (Kafka, audit trail,
// driver push). Every sink is attempted; errors are joined.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev models.DispatchEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
