package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"snotify/pkg/logx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structure and cross references. Transport-level settings
// (tokens, addresses) are checked when channels are built.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !logx.ValidLevel(c.Logging.Level) {
		add("logging.level: unknown level %q", c.Logging.Level)
	}

	names := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		path := fmt.Sprintf("channels[%d]", i)
		if _, dup := names[ch.Name]; dup {
			add("%s: duplicate channel name %q", path, ch.Name)
		}
		names[ch.Name] = struct{}{}
		if err := ch.validateBlocks(path); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]struct{}{}
	for i, s := range c.Schedules {
		path := fmt.Sprintf("schedules[%d]", i)
		if _, dup := seen[s.Name]; dup {
			add("%s: duplicate schedule name %q", path, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Channel != "" {
			if _, ok := names[s.Channel]; !ok {
				add("%s: unknown channel %q", path, s.Channel)
			}
		}
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone: %v", err)
		}
	}
	if h := c.HTTP; h != nil {
		if _, err := ParseDurationField("http.read_timeout", h.ReadTimeout); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("http.write_timeout", h.WriteTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if s := c.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ch ChannelConfig) validateBlocks(path string) error {
	set := 0
	for _, b := range []bool{ch.Telegram != nil, ch.Email != nil, ch.Webhook != nil} {
		if b {
			set++
		}
	}
	var ok bool
	switch ch.Type {
	case "telegram":
		ok = ch.Telegram != nil
	case "email":
		ok = ch.Email != nil
	case "webhook":
		ok = ch.Webhook != nil
	}
	if !ok || set != 1 {
		return fmt.Errorf("%s: type %q requires exactly one %q block", path, ch.Type, ch.Type)
	}
	if w := ch.Webhook; w != nil {
		if _, err := ParseDurationField(path+".webhook.timeout", w.Timeout); err != nil {
			return err
		}
		if b := w.Breaker; b != nil {
			if _, err := ParseDurationField(path+".webhook.breaker.timeout", b.Timeout); err != nil {
				return err
			}
			if _, err := ParseDurationField(path+".webhook.breaker.interval", b.Interval); err != nil {
				return err
			}
		}
	}
	for j, r := range ch.Recipients {
		if r.ThreadID != 0 && ch.Type != "telegram" {
			return fmt.Errorf("%s.recipients[%d]: thread_id is telegram only", path, j)
		}
	}
	return nil
}
