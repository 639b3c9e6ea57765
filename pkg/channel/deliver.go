package channel

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DeliverFunc performs one outbound transport operation for one recipient.
type DeliverFunc func(ctx context.Context, r Recipient) error

// Deliver attempts fn for every recipient in order and returns a *SendError
// listing each failed recipient. A cancelled ctx marks the recipients that were
// not yet attempted as failed with the context error.
func Deliver(ctx context.Context, channel string, targets []Recipient, fn DeliverFunc) error {
	var failed []*RecipientError
	for _, r := range targets {
		if err := ctx.Err(); err != nil {
			failed = append(failed, &RecipientError{Recipient: Label(r), Err: err})
			continue
		}
		if err := fn(ctx, r); err != nil {
			failed = append(failed, &RecipientError{Recipient: Label(r), Err: err})
		}
	}
	return collectFailures(channel, failed)
}

// DeliverConcurrent is Deliver with up to limit recipients in flight at once.
// Failures are reported in recipient order regardless of completion order.
func DeliverConcurrent(ctx context.Context, channel string, targets []Recipient, limit int, fn DeliverFunc) error {
	if limit <= 1 || len(targets) <= 1 {
		return Deliver(ctx, channel, targets, fn)
	}

	var (
		mu   sync.Mutex
		errs = make([]error, len(targets))
	)
	// Per-recipient errors are kept in errs; the group itself never fails so a
	// single bad recipient does not cancel the others.
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, r := range targets {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = fn(ctx, r)
			}
			if err != nil {
				mu.Lock()
				errs[i] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed []*RecipientError
	for i, err := range errs {
		if err != nil {
			failed = append(failed, &RecipientError{Recipient: Label(targets[i]), Err: err})
		}
	}
	return collectFailures(channel, failed)
}
