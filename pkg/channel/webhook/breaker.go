package webhook

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"snotify/pkg/logx"
)

// BreakerConfig enables a circuit breaker around the endpoint. While open,
// sends fail immediately with ErrCircuitOpen.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open (0 = 1).
	MaxRequests uint32
	// Interval clears the counts while closed (0 = never).
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64 `validate:"gte=0,lte=1"`
	MinRequests  uint32
}

// DefaultBreakerConfig returns the settings used when a breaker is enabled
// without explicit values.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned for sends rejected by an open breaker.
var ErrCircuitOpen = gobreaker.ErrOpenState

func newBreaker(name string, cfg BreakerConfig, log logx.Logger) *gobreaker.CircuitBreaker[struct{}] {
	def := DefaultBreakerConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("webhook breaker state change",
				logx.String("channel", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
}
