package notify

import (
	"time"

	"github.com/google/uuid"

	"snotify/pkg/channel"
	"snotify/pkg/logx"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver installs an observer for attempt and send events.
// Combine several with Observers.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.obs = o
		}
	}
}

// WithLogger sets the dispatcher's own logger (panics, registry changes).
func WithLogger(log logx.Logger) Option { return func(d *Dispatcher) { d.log = log } }

// Strict makes fallback sends return *AggregatedFailure when every channel
// fails. WithStrict overrides it per call.
func Strict(on bool) Option { return func(d *Dispatcher) { d.strict = on } }

func withClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

func defaultID() string { return uuid.NewString() }

// SendOption configures one send.
type SendOption func(*sendConfig)

type sendConfig struct {
	channel    string
	recipients []channel.Recipient
	strict     *bool
	source     string
}

// WithChannel targets exactly the named channel. The send runs in direct
// mode even when a fallback order is set.
func WithChannel(name string) SendOption { return func(c *sendConfig) { c.channel = name } }

// WithRecipients overrides the channel defaults for this send only. A non-nil
// empty list is a zero-target send.
func WithRecipients(rs ...channel.Recipient) SendOption {
	return func(c *sendConfig) {
		if rs == nil {
			rs = []channel.Recipient{}
		}
		c.recipients = channel.CloneRecipients(rs)
	}
}

// WithStrict overrides the dispatcher's Strict setting for this send.
func WithStrict(on bool) SendOption { return func(c *sendConfig) { c.strict = &on } }

// WithSource labels the caller ("cli", "http", "schedule:backup") on the
// Outcome for logs and audit records.
func WithSource(source string) SendOption { return func(c *sendConfig) { c.source = source } }

func buildSendConfig(opts []SendOption) sendConfig {
	var c sendConfig
	for _, o := range opts {
		if o != nil {
			o(&c)
		}
	}
	return c
}
