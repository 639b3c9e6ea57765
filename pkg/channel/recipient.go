package channel

import "fmt"

// Recipient identifies a destination within one channel's addressing scheme.
// Values are immutable once constructed.
type Recipient interface {
	ID() string
	Name() string
}

// Address is a bare string recipient. Channels convert it to their native
// recipient type in NormalizeRecipient.
type Address string

func (a Address) ID() string   { return string(a) }
func (a Address) Name() string { return string(a) }

// Addresses converts plain strings into recipients.
func Addresses(xs ...string) []Recipient {
	out := make([]Recipient, 0, len(xs))
	for _, x := range xs {
		out = append(out, Address(x))
	}
	return out
}

// CloneRecipients returns a shallow copy so callers cannot mutate a channel's
// stored defaults through the returned slice. nil stays nil and an empty
// slice stays empty.
func CloneRecipients(rs []Recipient) []Recipient {
	if rs == nil {
		return nil
	}
	out := make([]Recipient, len(rs))
	copy(out, rs)
	return out
}

// Label renders a recipient for logs and errors ("name (id)" or just the id).
func Label(r Recipient) string {
	if r == nil {
		return "<nil>"
	}
	id, name := r.ID(), r.Name()
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

// UnsupportedRecipient builds the ConfigError channels return for foreign
// recipient types.
func UnsupportedRecipient(channel string, r Recipient, want string) *ConfigError {
	return &ConfigError{
		Channel: channel,
		Reason:  fmt.Sprintf("recipient %s has unsupported type %T (want string or %s)", Label(r), r, want),
	}
}
