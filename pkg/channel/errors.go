package channel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig matches every *ConfigError via errors.Is.
	ErrConfig = errors.New("invalid channel config")
	// ErrSend matches every *SendError via errors.Is.
	ErrSend = errors.New("channel send failed")
)

// ConfigError reports a structurally invalid channel configuration
// (missing credential, unusable recipient type, ...).
type ConfigError struct {
	Channel string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Channel == "" {
		return "config: " + e.Reason
	}
	return e.Channel + ": config: " + e.Reason
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Configf is a small helper for building a ConfigError.
func Configf(channel, format string, args ...any) *ConfigError {
	return &ConfigError{Channel: channel, Reason: fmt.Sprintf(format, args...)}
}

// RecipientError is one recipient's delivery failure.
type RecipientError struct {
	Recipient string
	Err       error
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recipient %s: %v", e.Recipient, e.Err)
}

func (e *RecipientError) Unwrap() error { return e.Err }

// SendError reports that a channel's transport operation failed.
// Failed lists every recipient that could not be reached; Err is the
// underlying cause (the joined recipient errors when there are several).
type SendError struct {
	Channel string
	Failed  []*RecipientError
	Err     error
}

func (e *SendError) Error() string {
	if len(e.Failed) > 1 {
		parts := make([]string, 0, len(e.Failed))
		for _, f := range e.Failed {
			parts = append(parts, f.Error())
		}
		return fmt.Sprintf("%s: send failed for %d recipients: %s", e.Channel, len(e.Failed), strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s: send failed: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool { return target == ErrSend }

// NewSendError wraps a single transport failure that is not tied to a recipient.
func NewSendError(channel string, err error) *SendError {
	return &SendError{Channel: channel, Err: err}
}

// collectFailures folds per-recipient failures into a SendError (nil when empty).
func collectFailures(channel string, failed []*RecipientError) error {
	if len(failed) == 0 {
		return nil
	}
	if len(failed) == 1 {
		return &SendError{Channel: channel, Failed: failed, Err: failed[0]}
	}
	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		errs = append(errs, f)
	}
	return &SendError{Channel: channel, Failed: failed, Err: errors.Join(errs...)}
}
