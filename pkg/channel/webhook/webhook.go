// Package webhook delivers notifications as JSON POSTs to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"snotify/pkg/channel"
	"snotify/pkg/logx"
)

// DefaultName is the registry key used when no name is configured.
const DefaultName = "webhook"

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4
	maxErrorBody       = 512
)

// Config configures a webhook channel.
type Config struct {
	// Name overrides DefaultName.
	Name       string
	URL        string `validate:"required,http_url"`
	Headers    map[string]string
	Recipients []channel.Recipient
	// Timeout bounds each POST (0 = 10s).
	Timeout time.Duration `validate:"gte=0"`
	// Concurrency is the number of recipients posted in parallel (0 = 4).
	Concurrency int `validate:"gte=0"`
	// Breaker enables a circuit breaker when non-nil.
	Breaker *BreakerConfig
}

// Payload is the JSON body posted for each recipient.
type Payload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Subject   string `json:"subject,omitempty"`
}

// Option customizes a Channel.
type Option func(*Channel)

// WithHTTPClient replaces the default client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) Option { return func(ch *Channel) { ch.client = c } }

// WithLogger sets the per-recipient delivery logger.
func WithLogger(log logx.Logger) Option { return func(c *Channel) { c.log = log } }

// Channel posts one request per recipient.
type Channel struct {
	cfg     Config
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     logx.Logger
}

func New(cfg Config, opts ...Option) *Channel {
	cfg.Recipients = channel.CloneRecipients(cfg.Recipients)
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	c := &Channel{cfg: cfg, name: cfg.Name}
	if c.name == "" {
		c.name = DefaultName
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Breaker != nil {
		c.breaker = newBreaker(c.name, *cfg.Breaker, c.log)
	}
	return c
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Recipients() []channel.Recipient { return channel.CloneRecipients(c.cfg.Recipients) }

func (c *Channel) ValidateConfig() error {
	if err := channel.ValidateStruct(c.name, c.cfg); err != nil {
		return err
	}
	for k := range c.cfg.Headers {
		if strings.TrimSpace(k) == "" {
			return channel.Configf(c.name, "header names must not be empty")
		}
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
		return nil, channel.UnsupportedRecipient(c.name, r, "webhook.Recipient")
	}
	if strings.TrimSpace(out.id) == "" {
		return nil, channel.Configf(c.name, "recipient %q has an empty identifier", out.name)
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
	return channel.DeliverConcurrent(ctx, c.name, targets, c.cfg.Concurrency, func(ctx context.Context, r channel.Recipient) error {
		to := r.(Recipient)
		err := c.execute(func() error { return c.post(ctx, to, msg) })
		if err != nil {
			c.log.Warn("webhook send failed", logx.String("recipient", channel.Label(to)), logx.Err(err))
			return err
		}
		c.log.Debug("webhook delivered", logx.String("recipient", channel.Label(to)))
		return nil
	})
}

func (c *Channel) execute(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	_, err := c.breaker.Execute(func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (c *Channel) post(ctx context.Context, to Recipient, msg channel.Message) error {
	body, err := json.Marshal(Payload{Recipient: to.id, Message: msg.Text, Subject: msg.Subject})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
