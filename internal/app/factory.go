package app

import (
	"fmt"

	"snotify/internal/config"
	"snotify/pkg/channel"
	"snotify/pkg/channel/email"
	"snotify/pkg/channel/telegram"
	"snotify/pkg/channel/webhook"
	"snotify/pkg/logx"
)

// BuildChannel turns one configured channel into a transport. The result is
// not validated yet; Dispatcher.AddChannel does that.
func BuildChannel(cc config.ChannelConfig, log logx.Logger) (channel.Channel, error) {
	log = log.With(logx.String("channel", cc.Name))

	switch cc.Type {
	case "telegram":
		tc := cc.Telegram
		if tc == nil {
			return nil, &channel.ConfigError{Channel: cc.Name, Reason: "telegram block is required"}
		}
		var rs []channel.Recipient
		for _, r := range cc.Recipients {
			if r.ThreadID != 0 {
				rs = append(rs, telegram.NewTopicRecipient(r.Name, r.ID, r.ThreadID))
				continue
			}
			rs = append(rs, telegram.NewRecipient(r.Name, r.ID))
		}
		ch, err := telegram.New(telegram.Config{
			Name:           cc.Name,
			Token:          tc.Token,
			Recipients:     rs,
			ParseMode:      tc.ParseMode,
			DisablePreview: tc.DisablePreview,
			RatePerSec:     tc.RatePerSec,
			APIURL:         tc.APIURL,
		}, telegram.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return ch, nil

	case "email":
		ec := cc.Email
		if ec == nil {
			return nil, &channel.ConfigError{Channel: cc.Name, Reason: "email block is required"}
		}
		var rs []channel.Recipient
		for _, r := range cc.Recipients {
			rs = append(rs, email.NewRecipient(r.Name, r.ID))
		}
		return email.New(email.Config{
			Name:       cc.Name,
			Host:       ec.Host,
			Port:       ec.Port,
			Username:   ec.Username,
			Password:   ec.Password,
			From:       ec.From,
			Recipients: rs,
		}, email.WithLogger(log)), nil

	case "webhook":
		wc := cc.Webhook
		if wc == nil {
			return nil, &channel.ConfigError{Channel: cc.Name, Reason: "webhook block is required"}
		}
		path := fmt.Sprintf("channels[%s].webhook", cc.Name)
		timeout, err := config.ParseDurationField(path+".timeout", wc.Timeout)
		if err != nil {
			return nil, err
		}
		var breaker *webhook.BreakerConfig
		if wc.Breaker != nil {
			b, err := breakerConfig(path+".breaker", wc.Breaker)
			if err != nil {
				return nil, err
			}
			breaker = &b
		}
		var rs []channel.Recipient
		for _, r := range cc.Recipients {
			rs = append(rs, webhook.NewRecipient(r.Name, r.ID))
		}
		return webhook.New(webhook.Config{
			Name:        cc.Name,
			URL:         wc.URL,
			Headers:     wc.Headers,
			Recipients:  rs,
			Timeout:     timeout,
			Concurrency: wc.Concurrency,
			Breaker:     breaker,
		}, webhook.WithLogger(log)), nil

	default:
		return nil, &channel.ConfigError{Channel: cc.Name, Reason: fmt.Sprintf("unknown channel type %q", cc.Type)}
	}
}

// breakerConfig overlays the configured fields on the webhook defaults.
func breakerConfig(path string, bc *config.BreakerConfig) (webhook.BreakerConfig, error) {
	out := webhook.DefaultBreakerConfig()
	if bc.MaxRequests > 0 {
		out.MaxRequests = bc.MaxRequests
	}
	if bc.MinRequests > 0 {
		out.MinRequests = bc.MinRequests
	}
	if bc.FailureRatio > 0 {
		out.FailureRatio = bc.FailureRatio
	}
	var err error
	if out.Interval, err = config.ParseDurationOrDefault(path+".interval", bc.Interval, out.Interval); err != nil {
		return out, err
	}
	if out.Timeout, err = config.ParseDurationOrDefault(path+".timeout", bc.Timeout, out.Timeout); err != nil {
		return out, err
	}
	return out, nil
}
