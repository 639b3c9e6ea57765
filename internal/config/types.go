package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Dispatch DispatchConfig  `json:"dispatch"`
	Channels []ChannelConfig `json:"channels" validate:"dive"`

	// HTTP enables the notify API in `serve`. Omit to disable it.
	HTTP    *HTTPConfig    `json:"http,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`

	Scheduler SchedulerConfig  `json:"scheduler"`
	Schedules []ScheduleConfig `json:"schedules,omitempty" validate:"dive"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatchConfig controls routing between channels.
//
// An empty fallback_order sends to the first configured channel only.
type DispatchConfig struct {
	FallbackOrder []string `json:"fallback_order,omitempty" validate:"dive,excludesall=0x2C"`
	Strict        bool     `json:"strict,omitempty"`
}

// ChannelConfig declares one channel. Exactly the block matching Type must be
// set.
//
// Example:
//
//	{"name": "ops", "type": "telegram", "telegram": {"token": "${TG_TOKEN}"},
//	 "recipients": [{"id": "-100123", "name": "Ops"}]}
type ChannelConfig struct {
	Name       string            `json:"name" validate:"required,excludesall=0x2C"`
	Type       string            `json:"type" validate:"required,oneof=telegram email webhook"`
	Recipients []RecipientConfig `json:"recipients,omitempty" validate:"dive"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
}

type RecipientConfig struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name,omitempty"`
	// ThreadID targets a forum topic (telegram only).
	ThreadID int `json:"thread_id,omitempty"`
}

type TelegramConfig struct {
	Token          string `json:"token"` // do not log
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	APIURL         string `json:"api_url,omitempty"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"` // do not log
	From     string `json:"from,omitempty"`
}

type WebhookConfig struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"` // values may be secret
	Timeout     string            `json:"timeout,omitempty"`
	Concurrency int               `json:"concurrency,omitempty"`
	Breaker     *BreakerConfig    `json:"breaker,omitempty"`
}

// BreakerConfig enables a circuit breaker on a webhook channel.
type BreakerConfig struct {
	MaxRequests  uint32  `json:"max_requests,omitempty"`
	Interval     string  `json:"interval,omitempty"`
	Timeout      string  `json:"timeout,omitempty"`
	FailureRatio float64 `json:"failure_ratio,omitempty"`
	MinRequests  uint32  `json:"min_requests,omitempty"`
}

// HTTPConfig controls the notify API server.
//
// Security note: the API has no authentication of its own. Prefer binding
// to localhost or set a token.
type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token        string `json:"token,omitempty"` // optional bearer token (do not log)
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	Pprof        bool   `json:"pprof,omitempty"`
}

// StorageConfig controls the send audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./snotify.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=file sqlite none"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type SchedulerConfig struct {
	// Timezone for cron specs (IANA name). Defaults to local time.
	Timezone string `json:"timezone,omitempty"`
}

// ScheduleConfig sends a fixed message on a cron spec.
type ScheduleConfig struct {
	Name    string `json:"name" validate:"required"`
	Spec    string `json:"spec" validate:"required"`
	Text    string `json:"text" validate:"required"`
	Subject string `json:"subject,omitempty"`
	// Channel targets one channel (direct mode). Empty uses dispatch routing.
	Channel string `json:"channel,omitempty"`
}
