package app

import (
	"context"
	"time"

	"snotify/internal/eventbus"
	"snotify/internal/storage"
	"snotify/pkg/logx"
	"snotify/pkg/notify"
)

// busObserver forwards dispatcher events to the event bus. Completed sends
// are converted to audit records on the sending goroutine so consumers never
// share the caller's Outcome.
type busObserver struct {
	bus eventbus.Bus
}

func (o *busObserver) Observe(_ context.Context, ev notify.Event) {
	switch ev.Kind {
	case notify.EventSendCompleted:
		o.bus.Publish(eventbus.Event{Topic: eventbus.TopicSendCompleted, Time: ev.Time, Data: sendRecord(ev.Outcome, ev.Err)})
	case notify.EventAttemptFailed:
		o.bus.Publish(eventbus.Event{Topic: eventbus.TopicAttemptFailed, Time: ev.Time, Data: ev.Channel})
	}
}

func sendRecord(out *notify.Outcome, err error) storage.SendRecord {
	if out == nil {
		out = &notify.Outcome{}
	}
	r := storage.SendRecord{
		ID:        out.ID,
		At:        out.Started,
		Source:    out.Source,
		Mode:      string(out.Mode),
		Delivered: out.Delivered,
		Skipped:   out.Skipped,
		TookMS:    out.Duration().Milliseconds(),
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	for _, a := range out.Attempts {
		r.Attempts = append(r.Attempts, a.Channel)
		if a.Err != nil {
			r.Failed = append(r.Failed, a.Channel)
		}
	}
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// runAudit drains completed sends into the store until ctx is done.
func (a *App) runAudit(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(256, eventbus.TopicSendCompleted)
	defer unsub()
	log := a.log.With(logx.String("comp", "audit"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			rec, ok := ev.Data.(storage.SendRecord)
			if !ok {
				continue
			}
			if err := a.store.AppendSend(ctx, rec); err != nil {
				log.Warn("audit append failed", logx.String("send_id", rec.ID), logx.Err(err))
			}
		}
	}
}

// runEventLog logs every bus event at debug level.
func (a *App) runEventLog(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("topic", e.Topic), logx.Time("time", e.Time))
		}
	}
}
