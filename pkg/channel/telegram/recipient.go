package telegram

// Recipient is a Telegram chat, optionally scoped to a forum topic.
// It also satisfies telebot's Recipient interface.
type Recipient struct {
	name     string
	chatID   string
	threadID int
}

// NewRecipient builds a recipient for a numeric chat id or an @channel username.
func NewRecipient(name, chatID string) Recipient {
	return Recipient{name: name, chatID: chatID}
}

// NewTopicRecipient targets a forum topic (message thread) inside a chat.
func NewTopicRecipient(name, chatID string, threadID int) Recipient {
	return Recipient{name: name, chatID: chatID, threadID: threadID}
}

func (r Recipient) ID() string    { return r.chatID }
func (r Recipient) Name() string  { return r.name }
func (r Recipient) ThreadID() int { return r.threadID }

// Recipient implements tele.Recipient.
func (r Recipient) Recipient() string { return r.chatID }
