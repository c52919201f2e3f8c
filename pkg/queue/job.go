package queue

import (
	"context"
	"errors"
)

// Job handles one message type taken off a RedisQueue. The payload is the
// message's raw JSON. A returned error schedules a retry until RetryLimit is
// reached; errors wrapped with Permanent go to the dead letter list at once.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type routed to this job.
	Type() string

	Handle(ctx context.Context, payload interface{}) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one a retry cannot fix, such as a malformed payload.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
