package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snotify/pkg/channel"
)

type mail struct {
	addr string
	from string
	to   []string
	body string
}

type fakeSMTP struct {
	mu   sync.Mutex
	sent []mail
	fail map[string]error
}

func (f *fakeSMTP) send(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to[0]]; err != nil {
		return err
	}
	f.sent = append(f.sent, mail{addr: addr, from: from, to: to, body: string(msg)})
	return nil
}

func baseConfig() Config {
	return Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "bot@example.com",
		Password: "secret",
		Recipients: []channel.Recipient{
			NewRecipient("Ops", "ops@example.com"),
		},
	}
}

func newTestChannel(cfg Config) (*Channel, *fakeSMTP) {
	f := &fakeSMTP{fail: map[string]error{}}
	ch := New(cfg, WithSendFunc(f.send))
	ch.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return ch, f
}

func TestSendOneTransactionPerRecipient(t *testing.T) {
	ch, f := newTestChannel(baseConfig())

	err := ch.Send(context.Background(), channel.Message{Text: "disk full", Subject: "Alert"},
		channel.Addresses("a@example.com", "b@example.com"))
	require.NoError(t, err)

	require.Len(t, f.sent, 2)
	assert.Equal(t, "smtp.example.com:587", f.sent[0].addr)
	assert.Equal(t, "bot@example.com", f.sent[0].from)
	assert.Equal(t, []string{"a@example.com"}, f.sent[0].to)
	assert.Equal(t, []string{"b@example.com"}, f.sent[1].to)
	assert.Contains(t, f.sent[0].body, "Subject: Alert\r\n")
	assert.True(t, strings.HasSuffix(f.sent[0].body, "\r\n\r\ndisk full\r\n"))
}

func TestSendDefaultSubjectAndRecipients(t *testing.T) {
	ch, f := newTestChannel(baseConfig())

	require.NoError(t, ch.Send(context.Background(), channel.Message{Text: "x"}, nil))

	require.Len(t, f.sent, 1)
	assert.Contains(t, f.sent[0].body, "Subject: "+channel.DefaultSubject+"\r\n")
	assert.Contains(t, f.sent[0].body, "To: Ops <ops@example.com>\r\n")
}

func TestSendUsesExplicitFrom(t *testing.T) {
	cfg := baseConfig()
	cfg.Username = "apikey"
	cfg.From = "alerts@example.com"
	ch, f := newTestChannel(cfg)

	require.NoError(t, ch.ValidateConfig())
	require.NoError(t, ch.Send(context.Background(), channel.Message{Text: "x"}, nil))
	assert.Equal(t, "alerts@example.com", f.sent[0].from)
}

func TestSendEmptyRecipientsIsNoop(t *testing.T) {
	ch, f := newTestChannel(baseConfig())

	require.NoError(t, ch.Send(context.Background(), channel.Message{Text: "x"}, []channel.Recipient{}))
	assert.Empty(t, f.sent)
}

func TestSendReportsFailedRecipients(t *testing.T) {
	ch, f := newTestChannel(baseConfig())
	f.fail["b@example.com"] = errors.New("550 mailbox unavailable")

	err := ch.Send(context.Background(), channel.Message{Text: "x"},
		channel.Addresses("a@example.com", "b@example.com", "c@example.com"))

	var se *channel.SendError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Failed, 1)
	assert.Equal(t, "b@example.com", se.Failed[0].Recipient)
	assert.Len(t, f.sent, 2)
}

func TestSendRejectsInvalidAddress(t *testing.T) {
	ch, f := newTestChannel(baseConfig())

	err := ch.Send(context.Background(), channel.Message{Text: "x"}, channel.Addresses("not-an-email"))
	assert.ErrorIs(t, err, channel.ErrConfig)
	assert.Empty(t, f.sent)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no default recipients", func(c *Config) { c.Recipients = nil }, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"missing password", func(c *Config) { c.Password = "" }, true},
		{"non-email username without from", func(c *Config) { c.Username = "apikey" }, true},
		{"bad from", func(c *Config) { c.From = "nope" }, true},
		{"bad recipient", func(c *Config) { c.Recipients = channel.Addresses("nope") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			err := New(cfg).ValidateConfig()
			if tt.wantErr {
				assert.ErrorIs(t, err, channel.ErrConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestComposeEncodesNonASCIISubject(t *testing.T) {
	ch, _ := newTestChannel(baseConfig())
	body := string(ch.compose("a@example.com", NewRecipient("", "b@example.com"), "Größe", "line1\nline2"))

	assert.Contains(t, body, "Subject: =?utf-8?q?")
	assert.Contains(t, body, "To: b@example.com\r\n")
	assert.Contains(t, body, "line1\r\nline2")
}
