// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"snotify/pkg/channel"
	"snotify/pkg/logx"
)

// DefaultName is the registry key used when no name is configured.
const DefaultName = "telegram"

const defaultRatePerSec = 20

// Config configures a Telegram channel.
type Config struct {
	// Name overrides DefaultName.
	Name string
	// Token is the bot token issued by @BotFather.
	Token      string `validate:"required"`
	Recipients []channel.Recipient
	// ParseMode is passed through to sendMessage ("", "HTML", "Markdown", "MarkdownV2").
	ParseMode      string `validate:"omitempty,oneof=HTML Markdown MarkdownV2"`
	DisablePreview bool
	// RatePerSec bounds outgoing API calls for this channel (0 = default).
	RatePerSec int `validate:"gte=0"`
	// APIURL overrides the Bot API endpoint (self-hosted API servers, tests).
	APIURL string `validate:"omitempty,url"`
}

// Bot is the subset of *tele.Bot used for delivery.
type Bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Option customizes a Channel.
type Option func(*Channel)

// WithBot replaces the telebot client (tests, shared bots).
func WithBot(b Bot) Option { return func(c *Channel) { c.bot = b } }

// WithLogger sets the per-recipient delivery logger.
func WithLogger(log logx.Logger) Option { return func(c *Channel) { c.log = log } }

// Channel sends messages to Telegram chats.
type Channel struct {
	cfg     Config
	name    string
	bot     Bot
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds a Telegram channel. The bot is created offline: no request is
// made until the first Send.
func New(cfg Config, opts ...Option) (*Channel, error) {
	cfg.Recipients = channel.CloneRecipients(cfg.Recipients)
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
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if c.bot == nil {
		b, err := tele.NewBot(tele.Settings{
			URL:     strings.TrimRight(cfg.APIURL, "/"),
			Token:   cfg.Token,
			Offline: true,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: create bot: %w", err)
		}
		c.bot = b
	}
	return c, nil
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Recipients() []channel.Recipient { return channel.CloneRecipients(c.cfg.Recipients) }

func (c *Channel) ValidateConfig() error {
	if err := channel.ValidateStruct(c.name, c.cfg); err != nil {
		return err
	}
	if len(c.cfg.Recipients) == 0 {
		return channel.Configf(c.name, "at least one recipient is required")
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
		return nil, channel.UnsupportedRecipient(c.name, r, "telegram.Recipient")
	}
	if strings.TrimSpace(out.chatID) == "" {
		return nil, channel.Configf(c.name, "recipient %q has an empty chat id", out.name)
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

	chunks := splitText(msg.Text, textLimit, c.cfg.ParseMode)
	return channel.Deliver(ctx, c.name, targets, func(ctx context.Context, r channel.Recipient) error {
		to := r.(Recipient)
		for _, chunk := range chunks {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			opt := &tele.SendOptions{
				ParseMode:             c.cfg.ParseMode,
				DisableWebPagePreview: c.cfg.DisablePreview,
				ThreadID:              to.threadID,
			}
			if _, err := c.bot.Send(to, chunk, opt); err != nil {
				c.log.Warn("telegram send failed", logx.String("recipient", channel.Label(to)), logx.Err(err))
				return err
			}
		}
		c.log.Debug("telegram message sent", logx.String("recipient", channel.Label(to)), logx.Int("chunks", len(chunks)))
		return nil
	})
}
