package storage

import (
	"context"
	"fmt"
	"strings"

	"snotify/pkg/logx"
)

// Store persists send records.
type Store interface {
	AppendSend(ctx context.Context, r SendRecord) error
	// RecentSends returns up to limit records, newest first.
	RecentSends(ctx context.Context, limit int) ([]SendRecord, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when storage
// is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage: path is required for driver %q", driver)
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
