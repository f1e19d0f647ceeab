package hub

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrNotInRoom is returned by ChatMessage when the sender has not joined a room.
	// The sender has already been notified when it is returned.
	ErrNotInRoom = errors.New("hub: connection is not in a room")

	// ErrInvalidRoom is returned for an empty room identifier.
	ErrInvalidRoom = errors.New("hub: invalid room")
)

// DeliveryError records a failed delivery to a single recipient.
type DeliveryError struct {
	ConnID string
	Name   string
	Err    error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s (%s): %v", e.ConnID, e.Name, e.Err)
}

func (e DeliveryError) Unwrap() error {
	return e.Err
}

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failures  []DeliveryError
}

// Err combines the per-recipient failures, or returns nil when every delivery succeeded.
func (r DeliveryReport) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}
