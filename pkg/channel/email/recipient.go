package email

// Recipient is a mailbox with an optional display name.
type Recipient struct {
	name  string
	email string
}

func NewRecipient(name, email string) Recipient {
	return Recipient{name: name, email: email}
}

func (r Recipient) ID() string   { return r.email }
func (r Recipient) Name() string { return r.name }
