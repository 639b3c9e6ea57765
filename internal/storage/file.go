package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"snotify/pkg/logx"
)

// fileStore appends one JSON object per line. RecentSends scans the file and
// keeps a ring of the newest records.
type fileStore struct {
	path string
	log  logx.Logger

	mu sync.Mutex
	f  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{path: cfg.Path, log: log, f: f}, nil
}

func (s *fileStore) AppendSend(_ context.Context, r SendRecord) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	_, err = s.f.Write(b)
	return err
}

func (s *fileStore) RecentSends(ctx context.Context, limit int) ([]SendRecord, error) {
	limit = clampLimit(limit)

	s.mu.Lock()
	closed := s.f == nil
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]SendRecord, limit)
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r SendRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			s.log.Debug("skipping corrupt audit line", logx.Err(err))
			continue
		}
		ring[n%limit] = r
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	count := min(n, limit)
	out := make([]SendRecord, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, ring[(n-i)%limit])
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
