package webhook

// Recipient is an opaque identifier forwarded in the JSON payload
// (a user id, a routing key, a room).
type Recipient struct {
	name string
	id   string
}

func NewRecipient(name, id string) Recipient {
	return Recipient{name: name, id: id}
}

func (r Recipient) ID() string   { return r.id }
func (r Recipient) Name() string { return r.name }
