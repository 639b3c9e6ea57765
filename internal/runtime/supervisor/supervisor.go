// Package supervisor runs snotify's long-lived loops (HTTP server, config
// watcher, scheduler, audit consumer) under one cancellable context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"snotify/pkg/logx"
)

// Supervisor starts named tasks on a shared context, recovers their panics and
// remembers the first failure.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool
	firstErr    atomic.Pointer[error]
	wg          sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*taskState
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels every task once any task fails for good.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, tasks: map[string]*taskState{}}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err is the first task failure, if any.
func (s *Supervisor) Err() error {
	if p := s.firstErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Supervisor) fail(err error) {
	if s.firstErr.CompareAndSwap(nil, &err) && s.cancelOnErr {
		s.cancel()
	}
}

// TaskStatus is a point-in-time view of one named task.
type TaskStatus struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	Restarts int       `json:"restarts"`
	Panics   int       `json:"panics"`
	Started  time.Time `json:"started"`
	LastErr  string    `json:"last_err,omitempty"`
}

type taskState struct {
	TaskStatus
}

func (s *Supervisor) state(name string) *taskState {
	st := s.tasks[name]
	if st == nil {
		st = &taskState{TaskStatus: TaskStatus{Name: name}}
		s.tasks[name] = st
	}
	return st
}

func (s *Supervisor) markStart(name string, restart bool) {
	s.mu.Lock()
	st := s.state(name)
	st.Running = true
	st.Started = time.Now()
	if restart {
		st.Restarts++
	}
	s.mu.Unlock()
}

func (s *Supervisor) markStop(name string, err error, panicked bool) {
	s.mu.Lock()
	st := s.state(name)
	st.Running = false
	if panicked {
		st.Panics++
	}
	if err != nil {
		st.LastErr = err.Error()
	}
	s.mu.Unlock()
}

// Tasks returns every task seen so far sorted by name.
func (s *Supervisor) Tasks() []TaskStatus {
	s.mu.Lock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, st := range s.tasks {
		out = append(out, st.TaskStatus)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// run executes fn once, turning a panic into an error.
func (s *Supervisor) run(name string, fn func(context.Context) error) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task panicked",
				logx.String("task", name),
				logx.Any("panic", r),
				logx.Stack(logx.CallerStack(3, 24)),
			)
		}
	}()
	return false, fn(s.ctx)
}

// Go runs fn once. A non-nil error other than context.Canceled becomes Err.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.markStart(name, false)
		s.log.Debug("task started", logx.String("task", name))

		panicked, err := s.run(name, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.markStop(name, err, panicked)
		if err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
			return
		}
		s.log.Debug("task stopped", logx.String("task", name))
	}()
}

// RestartOption tunes GoRestart.
type RestartOption func(*restartConfig)

type restartConfig struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int // 0 = unlimited
}

// WithBackoff sets the jittered exponential backoff window between restarts.
func WithBackoff(min, max time.Duration) RestartOption {
	return func(c *restartConfig) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run is not counted.
func WithMaxRestarts(n int) RestartOption { return func(c *restartConfig) { c.maxRestarts = n } }

// GoRestart runs fn until it returns nil or the context ends, restarting it
// after errors and panics. Only the final give-up becomes Err.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartConfig{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.maxBackoff = max(cfg.maxBackoff, cfg.minBackoff)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			s.markStart(name, restarts > 0)
			started := time.Now()
			panicked, err := s.run(name, fn)

			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				s.markStop(name, nil, panicked)
				return
			}
			s.markStop(name, err, panicked)

			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("task gave up", logx.String("task", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(fmt.Errorf("%s: %w", name, err))
				return
			}

			// A long healthy run resets the window.
			if time.Since(started) >= cfg.maxBackoff {
				backoff = cfg.minBackoff
			}
			wait := backoff + time.Duration(rng.Int63n(int64(backoff/5)+1))
			s.log.Warn("task restarting", logx.String("task", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// Stop cancels every task and waits for them until ctx ends.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every task has returned, then reports Err. It returns
// ctx.Err() if ctx ends first.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}
