package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"snotify/pkg/channel"
	"snotify/pkg/logx"
)

// Dispatcher routes messages to registered channels.
//
// It is safe for concurrent use. Each send works from a snapshot of the
// registry and fallback order taken when the send starts.
type Dispatcher struct {
	mu    sync.RWMutex
	reg   registry
	order []string // nil = fallback disabled

	strict bool
	obs    Observer
	log    logx.Logger
	newID  func() string
	now    func() time.Time
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:   newRegistry(),
		obs:   nopObserver{},
		newID: defaultID,
		now:   time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	return d
}

// AddChannel validates ch and registers it under name (ch.Name() when name is
// empty). An existing entry with the same name is replaced in place. When
// validation fails the *channel.ConfigError is returned and nothing changes.
func (d *Dispatcher) AddChannel(ch channel.Channel, name string) error {
	if ch == nil {
		return &channel.ConfigError{Channel: name, Reason: "channel is nil"}
	}
	if name == "" {
		name = ch.Name()
	}
	if strings.TrimSpace(name) == "" {
		return &channel.ConfigError{Reason: "channel name is required"}
	}
	if err := ch.ValidateConfig(); err != nil {
		return err
	}

	d.mu.Lock()
	replaced := d.reg.put(name, ch)
	d.mu.Unlock()

	d.log.Debug("channel registered", logx.String("channel", name), logx.Bool("replaced", replaced))
	return nil
}

// GetChannel returns the channel registered under name.
func (d *Dispatcher) GetChannel(name string) (channel.Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.reg.get(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return ch, nil
}

// RemoveChannel unregisters name. The fallback order is left untouched; a
// removed name is skipped by later sends.
func (d *Dispatcher) RemoveChannel(name string) error {
	d.mu.Lock()
	ok := d.reg.remove(name)
	d.mu.Unlock()
	if !ok {
		return &NotFoundError{Name: name}
	}
	d.log.Debug("channel removed", logx.String("channel", name))
	return nil
}

// ListChannels returns the registered channels in registration order.
func (d *Dispatcher) ListChannels() []NamedChannel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reg.list()
}

// SetFallbackOrder replaces the fallback order. Names are not validated;
// unknown names are skipped at send time. An empty list disables fallback.
func (d *Dispatcher) SetFallbackOrder(names []string) {
	var order []string
	if len(names) > 0 {
		order = append([]string(nil), names...)
	}
	d.mu.Lock()
	d.order = order
	d.mu.Unlock()
}

// ClearFallbackOrder disables fallback: sends go to the first registered
// channel only.
func (d *Dispatcher) ClearFallbackOrder() { d.SetFallbackOrder(nil) }

// FallbackOrder returns a copy of the current order (nil when disabled).
func (d *Dispatcher) FallbackOrder() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.order == nil {
		return nil
	}
	return append([]string(nil), d.order...)
}

// SetStrict changes the default for fallback sends without WithStrict.
func (d *Dispatcher) SetStrict(on bool) {
	d.mu.Lock()
	d.strict = on
	d.mu.Unlock()
}

// Send dispatches msg and blocks until the chain finishes.
//
// The returned Outcome is never nil. In direct mode the channel's error is
// returned unchanged. In fallback mode a total failure yields a nil error
// unless the send is strict, in which case it is an *AggregatedFailure.
func (d *Dispatcher) Send(ctx context.Context, msg channel.Message, opts ...SendOption) (*Outcome, error) {
	return d.dispatch(ctx, msg, buildSendConfig(opts), false)
}

// Result is what SendAsync delivers.
type Result struct {
	Outcome *Outcome
	Err     error
}

// SendAsync runs the same chain as Send in its own goroutine. Exactly one
// Result is delivered, then the channel is closed. The channel is buffered so
// a caller that stops waiting does not leak the goroutine. Cancelling ctx
// stops the chain before its next attempt.
func (d *Dispatcher) SendAsync(ctx context.Context, msg channel.Message, opts ...SendOption) <-chan Result {
	cfg := buildSendConfig(opts)
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		o, err := d.dispatch(ctx, msg, cfg, false)
		out <- Result{Outcome: o, Err: err}
	}()
	return out
}

// Broadcast attempts every registered channel in registration order,
// regardless of the fallback order. It returns *AggregatedFailure only when
// no channel delivered. WithChannel is ignored.
func (d *Dispatcher) Broadcast(ctx context.Context, msg channel.Message, opts ...SendOption) (*Outcome, error) {
	cfg := buildSendConfig(opts)
	cfg.channel = ""
	return d.dispatch(ctx, msg, cfg, true)
}

// plan is the immutable snapshot a send runs against.
type plan struct {
	mode     Mode
	channels []NamedChannel
	skipped  []string
	strict   bool
}

func (d *Dispatcher) resolve(cfg sendConfig, broadcast bool) (plan, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := plan{mode: ModeDirect, strict: d.strict}
	if cfg.strict != nil {
		p.strict = *cfg.strict
	}

	switch {
	case broadcast:
		p.mode = ModeBroadcast
		p.channels = d.reg.list()
	case cfg.channel != "":
		ch, ok := d.reg.get(cfg.channel)
		if !ok {
			return p, &NotFoundError{Name: cfg.channel}
		}
		p.channels = []NamedChannel{{Name: cfg.channel, Channel: ch}}
	case len(d.order) > 0:
		p.mode = ModeFallback
		seen := make(map[string]struct{}, len(d.order))
		for _, name := range d.order {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			ch, ok := d.reg.get(name)
			if !ok {
				p.skipped = append(p.skipped, name)
				continue
			}
			p.channels = append(p.channels, NamedChannel{Name: name, Channel: ch})
		}
	default:
		if first, ok := d.reg.first(); ok {
			p.channels = []NamedChannel{first}
		}
	}

	if len(p.channels) == 0 {
		return p, ErrNoChannelsAvailable
	}
	return p, nil
}

// dispatch is the single orchestration core behind Send, SendAsync and
// Broadcast.
func (d *Dispatcher) dispatch(ctx context.Context, msg channel.Message, cfg sendConfig, broadcast bool) (out *Outcome, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out = &Outcome{ID: d.newID(), Source: cfg.source, Started: d.now()}

	p, err := d.resolve(cfg, broadcast)
	out.Mode = p.mode
	out.Skipped = p.skipped
	for _, name := range p.skipped {
		d.obs.Observe(ctx, Event{Kind: EventChannelSkipped, SendID: out.ID, Mode: out.Mode, Channel: name, Time: d.now()})
	}

	defer func() {
		out.Finished = d.now()
		d.obs.Observe(ctx, Event{
			Kind:     EventSendCompleted,
			SendID:   out.ID,
			Mode:     out.Mode,
			Err:      err,
			Duration: out.Duration(),
			Time:     out.Finished,
			Outcome:  out,
		})
	}()

	if err != nil {
		return out, err
	}

	switch p.mode {
	case ModeDirect:
		a := d.attempt(ctx, out, 1, p.channels[0], msg, cfg.recipients)
		if a.Err != nil {
			return out, a.Err
		}
		out.Delivered = a.Channel
		return out, nil

	case ModeFallback:
		for i, nc := range p.channels {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			a := d.attempt(ctx, out, i+1, nc, msg, cfg.recipients)
			if a.OK() {
				out.Delivered = a.Channel
				return out, nil
			}
		}
		if p.strict {
			return out, out.Err()
		}
		return out, nil

	default: // broadcast
		for i, nc := range p.channels {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			a := d.attempt(ctx, out, i+1, nc, msg, cfg.recipients)
			if a.OK() && out.Delivered == "" {
				out.Delivered = a.Channel
			}
		}
		return out, out.Err()
	}
}

// attempt validates, normalizes and sends through one channel and records the
// result in out.
func (d *Dispatcher) attempt(ctx context.Context, out *Outcome, n int, nc NamedChannel, msg channel.Message, override []channel.Recipient) Attempt {
	start := d.now()
	d.obs.Observe(ctx, Event{Kind: EventAttemptStarted, SendID: out.ID, Mode: out.Mode, Channel: nc.Name, Attempt: n, Time: start})

	a := Attempt{Channel: nc.Name}
	a.Recipients, a.Err = d.try(ctx, nc, msg, override)
	a.Duration = d.now().Sub(start)
	out.Attempts = append(out.Attempts, a)

	kind := EventAttemptSucceeded
	if a.Err != nil {
		kind = EventAttemptFailed
	}
	d.obs.Observe(ctx, Event{
		Kind:     kind,
		SendID:   out.ID,
		Mode:     out.Mode,
		Channel:  nc.Name,
		Attempt:  n,
		Err:      a.Err,
		Duration: a.Duration,
		Time:     d.now(),
	})
	return a
}

func (d *Dispatcher) try(ctx context.Context, nc NamedChannel, msg channel.Message, override []channel.Recipient) (labels []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("channel panicked",
				logx.String("channel", nc.Name),
				logx.Any("panic", r),
				logx.Stack(logx.CallerStack(2, 24)),
			)
			err = channel.NewSendError(nc.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	ch := nc.Channel
	if err := ch.ValidateConfig(); err != nil {
		return nil, err
	}

	var targets []channel.Recipient
	if override != nil {
		targets, err = channel.NormalizeAll(ch, override)
		if err != nil {
			return nil, err
		}
		labels = recipientLabels(targets)
	} else {
		labels = recipientLabels(ch.Recipients())
	}

	if err := ch.Send(ctx, msg, targets); err != nil {
		return labels, err
	}
	return labels, nil
}

func recipientLabels(rs []channel.Recipient) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, channel.Label(r))
	}
	return out
}
