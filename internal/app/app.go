// Package app wires configuration, channels, the dispatcher and the serve-time
// services (HTTP API, scheduler, audit log) together.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"snotify/internal/config"
	"snotify/internal/eventbus"
	"snotify/internal/metrics"
	"snotify/internal/scheduler"
	"snotify/internal/storage"
	"snotify/pkg/channel"
	"snotify/pkg/logx"
	"snotify/pkg/notify"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	disp    *notify.Dispatcher
	metrics *metrics.Metrics
	bus     eventbus.Bus
	store   storage.Store
	sched   *scheduler.Service

	// applyMu serializes Apply; fingerprints tracks what each registered
	// channel was built from.
	applyMu      sync.Mutex
	fingerprints map[string]uint64
}

// New loads the config at path and builds every component. Nothing runs in
// the background until Serve.
func New(path string) (*App, error) {
	cfgm := config.NewManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg))
	a := &App{
		cfgm:         cfgm,
		log:          log.With(logx.String("comp", "app")),
		logs:         logs,
		metrics:      metrics.New(),
		bus:          eventbus.New(),
		fingerprints: map[string]uint64{},
	}
	a.metrics.RegisterBusDropped(a.bus.Dropped)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a.disp = notify.New(
		notify.WithLogger(log.With(logx.String("comp", "dispatcher"))),
		notify.WithObserver(notify.Observers(
			notify.NewLogObserver(log.With(logx.String("comp", "notify"))),
			a.metrics,
			&busObserver{bus: a.bus},
		)),
	)
	a.sched = scheduler.New(a.fire, log.With(logx.String("comp", "scheduler")))

	if sc := cfg.Storage; sc != nil {
		stCfg, err := storageConfig(sc)
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
		st, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
		a.store = st
		if st != nil {
			a.log.Info("storage enabled", logx.String("driver", stCfg.Driver))
		}
	}

	if err := a.Apply(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Dispatcher() *notify.Dispatcher { return a.disp }

func (a *App) Logger() logx.Logger { return a.log }

// Close releases the store and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.logs.Close())
	return errors.Join(errs...)
}

// Check is CheckConfig in the config.Manager validator shape.
func (a *App) Check(_ context.Context, cfg *config.Config) error { return CheckConfig(cfg) }

// CheckConfig builds every channel and parses every schedule in cfg without
// touching live state.
func CheckConfig(cfg *config.Config) error {
	var errs []error
	for _, cc := range cfg.Channels {
		ch, err := BuildChannel(cc, logx.Nop())
		if err == nil {
			err = ch.ValidateConfig()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", cc.Name, err))
		}
	}
	for _, s := range cfg.Schedules {
		if _, err := scheduler.ParseSpec(s.Spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Apply reconciles the live components with cfg:
//   - changed or new channels are rebuilt and registered (replaced in place)
//   - channels missing from cfg are removed
//   - fallback order, strict mode, logging and schedules are replaced
//
// Channels are all built and validated before the registry is touched, so a
// bad channel leaves the previous set intact.
func (a *App) Apply(cfg *config.Config) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	type built struct {
		name string
		ch   channel.Channel
		fp   uint64
	}
	var (
		rebuild []built
		errs    []error
		want    = make(map[string]struct{}, len(cfg.Channels))
	)
	for _, cc := range cfg.Channels {
		want[cc.Name] = struct{}{}
		fp := cc.Fingerprint()
		if old, ok := a.fingerprints[cc.Name]; ok && old == fp {
			continue
		}
		ch, err := BuildChannel(cc, a.log)
		if err == nil {
			err = ch.ValidateConfig()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", cc.Name, err))
			continue
		}
		rebuild = append(rebuild, built{name: cc.Name, ch: ch, fp: fp})
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	jobs := make([]scheduler.Job, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		jobs = append(jobs, scheduler.Job{Name: s.Name, Spec: s.Spec, Text: s.Text, Subject: s.Subject, Channel: s.Channel})
	}
	if err := a.sched.Apply(cfg.Scheduler.Timezone, jobs); err != nil {
		return err
	}

	for _, b := range rebuild {
		if err := a.disp.AddChannel(b.ch, b.name); err != nil {
			return err
		}
		a.fingerprints[b.name] = b.fp
	}
	for _, nc := range a.disp.ListChannels() {
		if _, ok := want[nc.Name]; ok {
			continue
		}
		if err := a.disp.RemoveChannel(nc.Name); err == nil {
			delete(a.fingerprints, nc.Name)
			a.log.Info("channel removed", logx.String("channel", nc.Name))
		}
	}

	a.disp.SetFallbackOrder(cfg.Dispatch.FallbackOrder)
	a.disp.SetStrict(cfg.Dispatch.Strict)
	a.logs.Apply(logConfig(cfg))

	a.log.Debug("config applied",
		logx.Int("channels", len(cfg.Channels)),
		logx.Int("rebuilt", len(rebuild)),
		logx.Strings("fallback_order", cfg.Dispatch.FallbackOrder),
		logx.Int("schedules", len(jobs)),
	)
	return nil
}

// Send dispatches one message from the command line and records it when
// storage is enabled.
func (a *App) Send(ctx context.Context, msg channel.Message, opts ...notify.SendOption) (*notify.Outcome, error) {
	opts = append([]notify.SendOption{notify.WithSource("cli")}, opts...)
	out, err := a.disp.Send(ctx, msg, opts...)
	a.record(ctx, out, err)
	return out, err
}

// Broadcast is Send through every registered channel.
func (a *App) Broadcast(ctx context.Context, msg channel.Message, opts ...notify.SendOption) (*notify.Outcome, error) {
	opts = append([]notify.SendOption{notify.WithSource("cli")}, opts...)
	out, err := a.disp.Broadcast(ctx, msg, opts...)
	a.record(ctx, out, err)
	return out, err
}

// record writes the audit entry synchronously; Serve uses the bus instead.
func (a *App) record(ctx context.Context, out *notify.Outcome, err error) {
	if a.store == nil {
		return
	}
	if aerr := a.store.AppendSend(ctx, sendRecord(out, err)); aerr != nil {
		a.log.Warn("audit append failed", logx.Err(aerr))
	}
}

// fire delivers a scheduled job.
func (a *App) fire(ctx context.Context, j scheduler.Job) {
	opts := []notify.SendOption{notify.WithSource("schedule:" + j.Name)}
	if j.Channel != "" {
		opts = append(opts, notify.WithChannel(j.Channel))
	}
	out, err := a.disp.Send(ctx, channel.Message{Text: j.Text, Subject: j.Subject}, opts...)
	if err != nil || !out.OK() {
		a.log.Warn("scheduled notification not delivered", logx.String("job", j.Name), logx.Err(err))
	}
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(sc *config.StorageConfig) (storage.Config, error) {
	out := storage.Config{Driver: strings.ToLower(strings.TrimSpace(sc.Driver)), Path: strings.TrimSpace(sc.Path)}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return out, err
	}
	out.BusyTimeout = busy
	return out, nil
}
