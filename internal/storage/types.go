package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver is "file", "sqlite" or "none"/empty (disabled).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 = driver default
}

// SendRecord is one audited send. Keep it compact and schema-stable.
type SendRecord struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Source    string    `json:"source,omitempty"`
	Mode      string    `json:"mode"`
	Delivered string    `json:"delivered,omitempty"`
	Attempts  []string  `json:"attempts,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	Skipped   []string  `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}

// OK reports whether some channel delivered.
func (r SendRecord) OK() bool { return r.Delivered != "" }
