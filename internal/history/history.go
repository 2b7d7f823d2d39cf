package history

import (
	"context"
	"errors"
	"time"
)

// Event is an audit record of one performed control action. Statuses are
// never recorded.
type Event struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	OK         bool      `json:"ok"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for action events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to several sinks; all sinks are attempted.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink implementing io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
