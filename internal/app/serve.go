package app

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"snotify/internal/config"
	"snotify/internal/eventbus"
	"snotify/internal/httpapi"
	"snotify/internal/runtime/supervisor"
	"snotify/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the daemon until ctx is done or a task fails for good.
func (a *App) Serve(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	cfg := a.cfgm.Get()

	a.cfgm.SetValidator(a.Check)

	sup.Go("eventbus.log", a.runEventLog)
	if a.store != nil {
		sup.GoRestart("audit", a.runAudit)
	}
	sup.Go("scheduler", a.sched.Run)
	if cfg.HTTP != nil {
		srv, err := a.httpServer(cfg.HTTP, sup)
		if err != nil {
			return err
		}
		sup.Go("http", srv.Run)
	}

	sub := a.cfgm.Subscribe(8)
	sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, cfg)
		return nil
	})
	sup.GoRestart("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("snotify started", logx.Int("channels", len(a.disp.ListChannels())))

	<-sup.Context().Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("snotify stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sup.Stop(stopCtx)
}

func (a *App) httpServer(hc *config.HTTPConfig, sup *supervisor.Supervisor) (*httpapi.Server, error) {
	rt, err := config.ParseDurationField("http.read_timeout", hc.ReadTimeout)
	if err != nil {
		return nil, err
	}
	wt, err := config.ParseDurationField("http.write_timeout", hc.WriteTimeout)
	if err != nil {
		return nil, err
	}
	addr := strings.TrimSpace(hc.Addr)
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	deps := httpapi.Deps{
		Notifier: a.disp,
		Metrics:  a.metrics.Handler(),
		Health: func() any {
			return map[string]any{
				"tasks":       sup.Tasks(),
				"channels":    len(a.disp.ListChannels()),
				"bus_dropped": a.bus.Dropped(),
				"schedules":   a.sched.Entries(),
			}
		},
		Log: a.log.With(logx.String("comp", "http")),
	}
	if a.store != nil {
		deps.History = a.store
	}
	return httpapi.New(httpapi.Config{Addr: addr, Token: hc.Token, ReadTimeout: rt, WriteTimeout: wt, Pprof: hc.Pprof}, deps), nil
}

// reloadLoop applies every published config. Bursts are coalesced to the
// newest config.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, last *config.Config) {
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			next = c
		}
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}

		sections, attrs, changed := config.SummarizeChange(last, next)
		if len(sections) == 0 {
			a.log.Info("config reloaded (no changes)")
			continue
		}
		for _, s := range sections {
			if s == "http" || s == "storage" {
				a.log.Warn("config section changed; restart required", logx.String("section", s))
			}
		}
		if err := a.Apply(next); err != nil {
			a.log.Error("config apply failed; keeping previous", logx.Err(err))
			continue
		}
		last = next
		a.bus.Publish(eventbus.Event{Topic: eventbus.TopicConfigReloaded, Data: sections})

		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		if len(changed) > 0 {
			fields = append(fields, logx.Strings("channels", changed))
		}
		a.log.Info("config reloaded", fields...)
	}
}
