package channel

import "context"

// DefaultSubject is used by transports that need a subject line when the
// message does not carry one.
const DefaultSubject = "Notification"

// Message is the payload handed unchanged to every channel.
type Message struct {
	Text string
	// Subject is optional; only transports with a subject line use it.
	Subject string
}

// SubjectOr returns the message subject, or def when it is empty.
func (m Message) SubjectOr(def string) string {
	if m.Subject == "" {
		return def
	}
	return m.Subject
}

// Channel is a transport capable of delivering a Message to recipients.
//
// Implementations must not keep per-send state: a Channel is constructed once
// and reused by concurrent sends.
type Channel interface {
	// Name is the channel's declared name, used as the default registry key.
	Name() string
	// Recipients returns a copy of the default recipients.
	Recipients() []Recipient
	// ValidateConfig returns a *ConfigError when the channel cannot be used.
	// It must not mutate state and may be called repeatedly.
	ValidateConfig() error
	// NormalizeRecipient converts r into the channel's native recipient type.
	NormalizeRecipient(r Recipient) (Recipient, error)
	// Send delivers msg. A nil recipients slice means the defaults.
	Send(ctx context.Context, msg Message, recipients []Recipient) error
}

// Targets resolves the recipients for a send: the explicit override when it is
// non-nil, otherwise the channel defaults. Every recipient is normalized.
func Targets(ch Channel, override []Recipient) ([]Recipient, error) {
	rs := override
	if rs == nil {
		rs = ch.Recipients()
		if rs == nil {
			rs = []Recipient{}
		}
	}
	return NormalizeAll(ch, rs)
}

// NormalizeAll normalizes every recipient through ch.
// The returned slice is always non-nil.
func NormalizeAll(ch Channel, rs []Recipient) ([]Recipient, error) {
	out := make([]Recipient, 0, len(rs))
	for _, r := range rs {
		n, err := ch.NormalizeRecipient(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
