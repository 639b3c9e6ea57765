// Package scheduler fires configured notifications on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"snotify/pkg/logx"
)

// Job is one scheduled notification.
type Job struct {
	Name    string
	Spec    string // cron spec, descriptor (@hourly, @every 5m) or daily "HH:MM"
	Text    string
	Subject string
	Channel string // empty = dispatcher default routing
}

// FireFunc delivers a job. It runs on the cron goroutine pool.
type FireFunc func(ctx context.Context, job Job)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec parses a cron spec. "HH:MM" is shorthand for daily at that time.
func ParseSpec(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if h, m, err := parseHHMM(spec); err == nil {
		spec = fmt.Sprintf("%d %d * * *", m, h)
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// Service owns a cron instance and swaps its job set on Apply.
type Service struct {
	fire FireFunc
	log  logx.Logger

	mu   sync.Mutex
	loc  *time.Location
	jobs []Job
	c    *cron.Cron
	ctx  context.Context // set while running
}

func New(fire FireFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{fire: fire, log: log, loc: time.Local}
}

// Apply validates every spec and then replaces the timezone and job set. A
// running scheduler is restarted with the new set; on error nothing changes.
func (s *Service) Apply(timezone string, jobs []Job) error {
	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}
	var errs []error
	for _, j := range jobs {
		if _, err := ParseSpec(j.Spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", j.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loc = loc
	s.jobs = append([]Job(nil), jobs...)
	if s.c != nil {
		s.stopLocked()
		s.startLocked()
		s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.Int("jobs", len(jobs)))
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// in-flight jobs.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.stopLocked()
	s.ctx = nil
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Service) startLocked() {
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	ctx := s.ctx
	for _, j := range s.jobs {
		sched, _ := ParseSpec(j.Spec)
		s.c.Schedule(sched, cron.FuncJob(func() { s.run(ctx, j) }))
	}
	s.c.Start()
}

func (s *Service) stopLocked() {
	<-s.c.Stop().Done()
	s.c = nil
}

func (s *Service) run(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled job panicked", logx.String("job", j.Name), logx.Any("panic", r))
		}
	}()
	s.log.Debug("scheduled job firing", logx.String("job", j.Name))
	s.fire(ctx, j)
}

// Entry describes a scheduled job and its next run.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Entries lists the configured jobs with their next run time in the
// scheduler's timezone.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().In(s.loc)
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		sched, _ := ParseSpec(j.Spec)
		out = append(out, Entry{Name: j.Name, Spec: j.Spec, Next: sched.Next(now)})
	}
	return out
}
