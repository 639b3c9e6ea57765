package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Env is the environment overlay applied on top of the file config.
type Env struct {
	LogLevel      string   `env:"SNOTIFY_LOG_LEVEL"`
	FallbackOrder []string `env:"SNOTIFY_FALLBACK_ORDER" envSeparator:","`
	Strict        string   `env:"SNOTIFY_STRICT"`
	HTTPAddr      string   `env:"SNOTIFY_HTTP_ADDR"`

	// Secrets fill empty fields of every channel of the matching type.
	TelegramToken string `env:"SNOTIFY_TELEGRAM_TOKEN"`
	SMTPPassword  string `env:"SNOTIFY_SMTP_PASSWORD"`
}

// LoadEnv reads the overlay from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// Apply overlays e onto cfg.
func (e Env) Apply(cfg *Config) error {
	if v := strings.TrimSpace(e.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if len(e.FallbackOrder) > 0 {
		order := make([]string, 0, len(e.FallbackOrder))
		for _, n := range e.FallbackOrder {
			if n = strings.TrimSpace(n); n != "" {
				order = append(order, n)
			}
		}
		cfg.Dispatch.FallbackOrder = order
	}
	if v := strings.TrimSpace(e.Strict); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SNOTIFY_STRICT: %w", err)
		}
		cfg.Dispatch.Strict = b
	}
	if v := strings.TrimSpace(e.HTTPAddr); v != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &HTTPConfig{}
		}
		cfg.HTTP.Addr = v
	}
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if ch.Telegram != nil && ch.Telegram.Token == "" {
			ch.Telegram.Token = e.TelegramToken
		}
		if ch.Email != nil && ch.Email.Password == "" {
			ch.Email.Password = e.SMTPPassword
		}
	}
	return nil
}

var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandRefs replaces ${VAR} references with environment values. A bare
// "$" is left alone so passwords containing it survive.
func expandRefs(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// ExpandSecrets resolves ${VAR} references in credential and endpoint fields.
func ExpandSecrets(cfg *Config) {
	if cfg.HTTP != nil {
		cfg.HTTP.Token = expandRefs(cfg.HTTP.Token)
	}
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if t := ch.Telegram; t != nil {
			t.Token = expandRefs(t.Token)
		}
		if m := ch.Email; m != nil {
			m.Username = expandRefs(m.Username)
			m.Password = expandRefs(m.Password)
		}
		if w := ch.Webhook; w != nil {
			w.URL = expandRefs(w.URL)
			for k, v := range w.Headers {
				w.Headers[k] = expandRefs(v)
			}
		}
	}
}
