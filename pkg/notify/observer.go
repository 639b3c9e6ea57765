package notify

import (
	"context"
	"time"

	"snotify/pkg/logx"
)

// EventKind names a dispatcher event.
type EventKind string

const (
	EventAttemptStarted   EventKind = "attempt.started"
	EventAttemptSucceeded EventKind = "attempt.succeeded"
	EventAttemptFailed    EventKind = "attempt.failed"
	EventChannelSkipped   EventKind = "channel.skipped"
	EventSendCompleted    EventKind = "send.completed"
)

// Event is reported to an Observer while a send runs.
type Event struct {
	Kind   EventKind
	SendID string
	Mode   Mode
	// Channel is empty for send.completed.
	Channel string
	// Attempt is the 1-based attempt number (0 for skip/completion events).
	Attempt  int
	Err      error
	Duration time.Duration
	Time     time.Time
	// Outcome is set on send.completed only. Observers must not modify it.
	Outcome *Outcome
}

// Observer receives dispatcher events synchronously, on the sending goroutine.
// Implementations must be safe for concurrent use and should return quickly.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nopObserver{}
	case 1:
		return out[0]
	}
	return out
}

// LogObserver renders events as structured log lines.
type LogObserver struct {
	log logx.Logger
}

func NewLogObserver(log logx.Logger) *LogObserver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) Observe(_ context.Context, ev Event) {
	base := []logx.Field{logx.String("send_id", ev.SendID), logx.String("mode", string(ev.Mode))}
	switch ev.Kind {
	case EventAttemptStarted:
		o.log.Debug("attempting channel", append(base, logx.String("channel", ev.Channel), logx.Int("attempt", ev.Attempt))...)
	case EventAttemptSucceeded:
		o.log.Info("channel delivered", append(base,
			logx.String("channel", ev.Channel),
			logx.Int("attempt", ev.Attempt),
			logx.Duration("took", ev.Duration),
		)...)
	case EventAttemptFailed:
		o.log.Warn("channel failed", append(base,
			logx.String("channel", ev.Channel),
			logx.Int("attempt", ev.Attempt),
			logx.Duration("took", ev.Duration),
			logx.Err(ev.Err),
		)...)
	case EventChannelSkipped:
		o.log.Warn("fallback channel not registered, skipping", append(base, logx.String("channel", ev.Channel))...)
	case EventSendCompleted:
		fields := append(base, logx.Duration("took", ev.Duration), logx.Err(ev.Err))
		if ev.Outcome != nil {
			fields = append(fields,
				logx.String("delivered", ev.Outcome.Delivered),
				logx.Int("attempts", len(ev.Outcome.Attempts)),
			)
		}
		if ev.Err != nil || !ev.Outcome.OK() {
			o.log.Error("notification not delivered", fields...)
			return
		}
		o.log.Info("notification sent", fields...)
	}
}
