package channel

import (
	"context"
	"errors"
)

// SendFunc delivers a message to already-normalized recipients.
type SendFunc func(ctx context.Context, msg Message, recipients []Recipient) error

// Func adapts a plain function into a Channel, for user-defined transports.
//
// Recipients are kept as given; Address values pass normalization unchanged.
type Func struct {
	name       string
	recipients []Recipient
	fn         SendFunc
}

// NewFunc builds a Func channel. fn is called once per send with the resolved
// recipients (never for a zero-target send).
func NewFunc(name string, recipients []Recipient, fn SendFunc) *Func {
	return &Func{name: name, recipients: CloneRecipients(recipients), fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Recipients() []Recipient { return CloneRecipients(f.recipients) }

func (f *Func) ValidateConfig() error {
	if f.name == "" {
		return &ConfigError{Reason: "channel name is required"}
	}
	if f.fn == nil {
		return Configf(f.name, "send function is required")
	}
	for _, r := range f.recipients {
		if r == nil {
			return Configf(f.name, "nil recipient")
		}
	}
	return nil
}

func (f *Func) NormalizeRecipient(r Recipient) (Recipient, error) {
	if r == nil {
		return nil, Configf(f.name, "nil recipient")
	}
	return r, nil
}

func (f *Func) Send(ctx context.Context, msg Message, recipients []Recipient) error {
	targets, err := Targets(f, recipients)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	if err := f.fn(ctx, msg, targets); err != nil {
		var se *SendError
		if errors.As(err, &se) {
			return err
		}
		return NewSendError(f.name, err)
	}
	return nil
}
