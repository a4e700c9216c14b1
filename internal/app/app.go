// Package app wires the generator's services together and owns their
// start/stop order.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"buildpulse/internal/config"
	"buildpulse/internal/eventbus"
	"buildpulse/internal/generator"
	"buildpulse/internal/history"
	"buildpulse/internal/registry"
	"buildpulse/internal/remote"
	"buildpulse/internal/stats"
	logx "buildpulse/pkg/logx"
)

type App struct {
	logSvc *logx.Service
	log    logx.Logger

	man      *config.Manager // nil when running without a config file
	resolved *config.Resolved

	client   *remote.Client
	reg      *registry.Registry
	bus      eventbus.Bus
	store    history.Store
	consumer *history.Consumer
	gen      *generator.Service
	stats    *stats.Reporter

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
	cfgCh       chan *config.Config
}

// New loads configuration (file if given, then environment overlay) and
// constructs everything that needs no network. Nothing talks to the remote
// service until Start.
func New(cfgPath string) (*App, error) {
	a := &App{bus: eventbus.New()}

	cfg := config.Default()
	if cfgPath != "" {
		a.man = config.NewManager(cfgPath)
		loaded, err := a.man.Load()
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	a.resolved = resolved

	a.logSvc, a.log = logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if a.man != nil {
		a.man.SetLogger(a.log.With(logx.String("svc", "config")))
		a.man.SetValidator(func(ctx context.Context, c *config.Config) error {
			next := *c
			if err := config.ApplyEnv(&next); err != nil {
				return err
			}
			_, err := next.Resolve()
			return err
		})
	}

	a.client = remote.New(remote.Options{
		BaseURL:        resolved.BaseURL,
		RequestTimeout: resolved.RequestTimeout,
		RatePerSec:     resolved.RatePerSec,
		Log:            a.log.With(logx.String("svc", "remote")),
	})

	store, err := history.Open(history.Config{
		Driver:      resolved.HistoryDriver,
		Path:        resolved.HistoryPath,
		BusyTimeout: resolved.HistoryBusyTimeout,
		MaxRows:     resolved.HistoryMaxRows,
	}, a.log.With(logx.String("svc", "history")))
	if err != nil {
		return nil, err
	}
	a.store = store
	a.consumer = history.NewConsumer(store, a.bus, a.log.With(logx.String("svc", "history")))

	return a, nil
}

// Logger exposes the root logger for the entrypoint.
func (a *App) Logger() logx.Logger { return a.log }

// Start brings the demo up: readiness probe, project creation, then services.
// A failed readiness probe is the only fatal startup path after New.
func (a *App) Start(ctx context.Context) error {
	r := a.resolved

	a.log.Info("waiting for build-counter service",
		logx.String("base_url", r.BaseURL),
		logx.Int("retries", r.ReadyRetries))
	if err := a.client.WaitReady(ctx, r.ReadyRetries, r.ReadyBackoff); err != nil {
		return err
	}

	reg, err := registry.New(r.Projects, a.client, a.log.With(logx.String("svc", "registry")), 0)
	if err != nil {
		return err
	}
	a.reg = reg

	a.consumer.Start(ctx)

	a.gen = generator.New(generator.Options{
		Registry: reg,
		Bus:      a.bus,
		Log:      a.log.With(logx.String("svc", "generator")),
		Tunables: tunablesFrom(r),
	})
	a.gen.Start(ctx)

	a.stats = stats.New(stats.Options{
		Registry: reg,
		Log:      a.log.With(logx.String("svc", "stats")),
		Schedule: r.StatsSchedule,
	})
	if r.StatsEnabled {
		if err := a.stats.Start(ctx); err != nil {
			return err
		}
	}

	if a.man != nil {
		a.startWatch(ctx)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("demo generator running",
		logx.Int("projects", reg.Len()),
		logx.Float64("success_rate", r.SuccessRate))
	return nil
}

// Stop tears the demo down in reverse order. The generator's Stop performs
// the active-build sweep before the final stats block prints.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchCancel != nil {
		a.watchCancel()
		a.watchWG.Wait()
		a.watchCancel = nil
	}
	if a.cfgCh != nil && a.man != nil {
		a.man.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}

	if a.gen != nil {
		a.gen.Stop(ctx)
	}
	if a.stats != nil {
		a.stats.Final()
		a.stats.Stop(ctx)
	}
	a.consumer.Stop()
	a.logRecentBuilds(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("history close failed", logx.Err(err))
	}
	a.log.Info("demo generator stopped")
	return a.logSvc.Close()
}

// logRecentBuilds dumps the tail of the history ledger on shutdown.
func (a *App) logRecentBuilds(ctx context.Context) {
	recs, err := a.store.RecentBuilds(ctx, 10)
	if err != nil {
		if !errors.Is(err, history.ErrDisabled) {
			a.log.Warn("history read failed", logx.Err(err))
		}
		return
	}
	for _, rec := range recs {
		a.log.Info("recent build",
			logx.String("project", rec.Project),
			logx.String("build_id", rec.BuildID),
			logx.Int("server_id", rec.ServerID),
			logx.Bool("success", rec.Success),
			logx.Bool("forced", rec.Forced),
			logx.Duration("took", rec.Took))
	}
}

// startWatch follows the config file and applies hot-reloadable tunables.
func (a *App) startWatch(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.cfgCh = a.man.Subscribe(1)

	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.man.Watch(wctx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(ctx, cfg)
			}
		}
	}()
}

// applyConfig picks up the hot-reloadable knobs from a validated config.
// BaseURL and project count changes need a restart and are ignored here.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	next := *cfg
	if err := config.ApplyEnv(&next); err != nil {
		a.log.Warn("config apply skipped", logx.Err(err))
		return
	}
	r, err := next.Resolve()
	if err != nil {
		a.log.Warn("config apply skipped", logx.Err(err))
		return
	}

	a.logSvc.Apply(logx.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.Console,
		File: logx.FileConfig{
			Enabled: next.Logging.File.Enabled,
			Path:    next.Logging.File.Path,
		},
	})
	a.client.SetRate(r.RatePerSec)
	if a.gen != nil {
		a.gen.Apply(tunablesFrom(r))
	}
	if a.stats != nil {
		if err := a.stats.Apply(ctx, r.StatsSchedule); err != nil {
			a.log.Warn("stats schedule not applied", logx.Err(err))
		}
	}
	a.resolved = r
	a.log.Info("tunables applied",
		logx.Float64("success_rate", r.SuccessRate),
		logx.Duration("interval_min", r.IntervalMin),
		logx.Duration("interval_max", r.IntervalMax))
}

func tunablesFrom(r *config.Resolved) generator.Tunables {
	return generator.Tunables{
		IntervalMin:       r.IntervalMin,
		IntervalMax:       r.IntervalMax,
		BuildDurationMin:  r.BuildDurationMin,
		BuildDurationMax:  r.BuildDurationMax,
		SuccessRate:       r.SuccessRate,
		StartChance:       r.StartChance,
		ForceFinishChance: r.ForceFinishChance,
	}
}
