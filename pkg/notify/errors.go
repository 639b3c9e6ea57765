package notify

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("channel not found")
	// ErrNoChannelsAvailable is returned when a send resolves to no channel at all.
	ErrNoChannelsAvailable = errors.New("no channels available")
)

// NotFoundError reports a lookup of an unregistered channel name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("channel %q not found", e.Name) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AggregatedFailure reports that every attempted channel failed. Errors holds
// one error per attempt, in attempt order.
type AggregatedFailure struct {
	Errors []error
}

func (e *AggregatedFailure) Error() string {
	if len(e.Errors) == 0 {
		return "all channels failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("all %d channels failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *AggregatedFailure) Unwrap() []error { return e.Errors }
