package notify

import "time"

// Mode is the strategy a send ran with.
type Mode string

const (
	// ModeDirect sends to one channel and returns its error unchanged.
	ModeDirect Mode = "direct"
	// ModeFallback tries channels in fallback order until one succeeds.
	ModeFallback Mode = "fallback"
	// ModeBroadcast attempts every registered channel.
	ModeBroadcast Mode = "broadcast"
)

// Attempt is one channel's try within a send.
type Attempt struct {
	Channel string
	// Recipients are the labels of the resolved recipients.
	Recipients []string
	Err        error
	Duration   time.Duration
}

func (a Attempt) OK() bool { return a.Err == nil }

// Outcome describes what a send did.
type Outcome struct {
	// ID correlates log lines and audit records of one send.
	ID   string
	Mode Mode
	// Source is the WithSource label, if any.
	Source string
	// Delivered names the first channel that succeeded ("" when none did).
	Delivered string
	Attempts  []Attempt
	// Skipped lists fallback names that were not registered.
	Skipped  []string
	Started  time.Time
	Finished time.Time
}

// OK reports whether at least one channel delivered the message.
func (o *Outcome) OK() bool { return o != nil && o.Delivered != "" }

// Succeeded lists every channel that delivered, in attempt order.
func (o *Outcome) Succeeded() []string {
	if o == nil {
		return nil
	}
	var out []string
	for _, a := range o.Attempts {
		if a.OK() {
			out = append(out, a.Channel)
		}
	}
	return out
}

// Errors returns one error per failed attempt, in attempt order.
func (o *Outcome) Errors() []error {
	if o == nil {
		return nil
	}
	var out []error
	for _, a := range o.Attempts {
		if a.Err != nil {
			out = append(out, a.Err)
		}
	}
	return out
}

// Err returns *AggregatedFailure when a fallback or broadcast send attempted
// channels and none delivered, else nil.
func (o *Outcome) Err() error {
	if o == nil || o.Mode == ModeDirect || o.OK() || len(o.Attempts) == 0 {
		return nil
	}
	return &AggregatedFailure{Errors: o.Errors()}
}

// Duration is the wall time of the whole send.
func (o *Outcome) Duration() time.Duration {
	if o == nil || o.Finished.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}
