// Package email delivers notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"snotify/pkg/channel"
	"snotify/pkg/logx"
)

// DefaultName is the registry key used when no name is configured.
const DefaultName = "email"

// Config configures an SMTP channel.
type Config struct {
	// Name overrides DefaultName.
	Name     string
	Host     string `validate:"required,hostname_rfc1123"`
	Port     int    `validate:"required,gt=0,lte=65535"`
	Username string `validate:"required"`
	Password string `validate:"required"`
	// From defaults to Username.
	From       string `validate:"omitempty,email"`
	Recipients []channel.Recipient
}

// SendFunc performs one SMTP transaction. It matches smtp.SendMail plus a
// context so deadlines can be honored.
type SendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Option customizes a Channel.
type Option func(*Channel)

// WithSendFunc replaces the SMTP transport (tests, custom dialers).
func WithSendFunc(fn SendFunc) Option { return func(c *Channel) { c.send = fn } }

// WithLogger sets the per-recipient delivery logger.
func WithLogger(log logx.Logger) Option { return func(c *Channel) { c.log = log } }

// Channel sends one email per recipient.
type Channel struct {
	cfg  Config
	name string
	send SendFunc
	log  logx.Logger
	now  func() time.Time
}

func New(cfg Config, opts ...Option) *Channel {
	cfg.Recipients = channel.CloneRecipients(cfg.Recipients)
	c := &Channel{cfg: cfg, name: cfg.Name, send: sendMail, now: time.Now}
	if c.name == "" {
		c.name = DefaultName
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Recipients() []channel.Recipient { return channel.CloneRecipients(c.cfg.Recipients) }

func (c *Channel) ValidateConfig() error {
	if err := channel.ValidateStruct(c.name, c.cfg); err != nil {
		return err
	}
	if c.cfg.From == "" && !channel.ValidateVar(c.cfg.Username, "email") {
		return channel.Configf(c.name, "From is required when Username is not an email address")
	}
	for _, r := range c.cfg.Recipients {
		if _, err := c.NormalizeRecipient(r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) NormalizeRecipient(r channel.Recipient) (channel.Recipient, error) {
	var out Recipient
	switch v := r.(type) {
	case Recipient:
		out = v
	case *Recipient:
		if v == nil {
			return nil, channel.Configf(c.name, "nil recipient")
		}
		out = *v
	case channel.Address:
		out = NewRecipient(string(v), string(v))
	default:
		return nil, channel.UnsupportedRecipient(c.name, r, "email.Recipient")
	}
	if !channel.ValidateVar(out.email, "required,email") {
		return nil, channel.Configf(c.name, "recipient %q is not a valid email address", out.email)
	}
	return out, nil
}

func (c *Channel) Send(ctx context.Context, msg channel.Message, recipients []channel.Recipient) error {
	targets, err := channel.Targets(c, recipients)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	from := c.from()
	subject := msg.SubjectOr(channel.DefaultSubject)

	return channel.Deliver(ctx, c.name, targets, func(ctx context.Context, r channel.Recipient) error {
		to := r.(Recipient)
		body := c.compose(from, to, subject, msg.Text)
		if err := c.send(ctx, addr, auth, from, []string{to.email}, body); err != nil {
			c.log.Warn("email send failed", logx.String("recipient", channel.Label(to)), logx.Err(err))
			return err
		}
		c.log.Debug("email sent", logx.String("recipient", channel.Label(to)))
		return nil
	})
}

func (c *Channel) from() string {
	if c.cfg.From != "" {
		return c.cfg.From
	}
	return c.cfg.Username
}

// compose renders a minimal RFC 5322 text/plain message.
func (c *Channel) compose(from string, to Recipient, subject, text string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	if to.name != "" && to.name != to.email {
		fmt.Fprintf(&b, "To: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", to.name), to.email)
	} else {
		fmt.Fprintf(&b, "To: %s\r\n", to.email)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", c.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
