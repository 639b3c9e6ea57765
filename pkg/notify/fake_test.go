package notify

import (
	"context"
	"sync"

	"snotify/pkg/channel"
)

type sendCall struct {
	msg        channel.Message
	recipients []string
}

// fakeChannel follows the channel contract with scripted failures.
type fakeChannel struct {
	name        string
	defaults    []channel.Recipient
	validateErr error
	sendErr     error
	panicWith   any
	onSend      func(ctx context.Context)

	mu    sync.Mutex
	calls []sendCall
}

func newFake(name string, defaults ...string) *fakeChannel {
	return &fakeChannel{name: name, defaults: channel.Addresses(defaults...)}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Recipients() []channel.Recipient { return channel.CloneRecipients(f.defaults) }

func (f *fakeChannel) ValidateConfig() error { return f.validateErr }

func (f *fakeChannel) NormalizeRecipient(r channel.Recipient) (channel.Recipient, error) {
	if _, ok := r.(channel.Address); !ok {
		return nil, channel.UnsupportedRecipient(f.name, r, "string")
	}
	return r, nil
}

func (f *fakeChannel) Send(ctx context.Context, msg channel.Message, recipients []channel.Recipient) error {
	targets, err := channel.Targets(f, recipients)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	if f.onSend != nil {
		f.onSend(ctx)
	}
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.mu.Lock()
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID())
	}
	f.calls = append(f.calls, sendCall{msg: msg, recipients: ids})
	f.mu.Unlock()
	return f.sendErr
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChannel) lastCall() sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type otherRecipient struct{}

func (otherRecipient) ID() string   { return "other" }
func (otherRecipient) Name() string { return "other" }

// recordingObserver captures events in order.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingObserver) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		s := string(ev.Kind)
		if ev.Channel != "" {
			s += ":" + ev.Channel
		}
		out = append(out, s)
	}
	return out
}
