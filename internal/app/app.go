package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"notirelay/internal/api"
	"notirelay/internal/collate"
	"notirelay/internal/condition"
	"notirelay/internal/config"
	"notirelay/internal/eventbus"
	"notirelay/internal/metrics"
	"notirelay/internal/notifier"
	"notirelay/internal/relay"
	rtsup "notirelay/internal/runtime/supervisor"
	"notirelay/internal/storage"
	"notirelay/internal/task/scheduler"
	logx "notirelay/pkg/logx"
	"notirelay/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	backend storage.Backend
	store   *collate.Store
	notif   *notifier.Service
	flusher *relay.Flusher
	sched   *scheduler.Service
	metrics *metrics.Collector
	server  *api.Server
	apiCfg  api.Config
	sd      *systemd.Notifier

	ln net.Listener
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", cfg.TransportDriver()))
	raw, err := newTransport(cfg, nil, bootLog)
	if err != nil {
		return nil, err
	}

	// the chat sink posts through the raw transport so log lines never
	// compete with relay traffic for the notifier's rate budget
	logSvc, log := logx.New(mapLoggingConfig(cfg), raw)
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, raw, bus, log.With(logx.String("comp", "notifier")))

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := collate.Open(openCtx, backend, cfg.HomeAssistant.Toggles.Keys(), log.With(logx.String("comp", "collate")))
	cancel()
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	appLog.Info("collation buffer ready",
		logx.String("driver", scfg.Driver),
		logx.String("path", scfg.Path),
		logx.Strings("topics", store.Topics()))

	condTimeout, err := config.ParseDurationOrDefault("condition.timeout", cfg.Condition.Timeout, config.DefaultCondTimeout)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	ha := condition.NewHomeAssistant(cfg.HomeAssistant.Token, &http.Client{Timeout: condTimeout})
	gate := condition.NewGate(cfg.HomeAssistant.Toggles, ha, condTimeout, log.With(logx.String("comp", "condition")))

	clk := clock.New()
	router := relay.NewRouter(gate, store, notif, clk, loc, bus, log.With(logx.String("comp", "router")))
	flusher := relay.NewFlusher(store, notif, clk, bus, log.With(logx.String("comp", "flusher")))

	sched := scheduler.New(scheduler.Config{
		SendTimes:    cfg.EffectiveSendTimes(),
		Location:     loc,
		FlushOnStart: cfg.Collate.FlushOnStart,
	}, clk, func(ctx context.Context, reason string) error {
		_, err := flusher.Flush(ctx, reason)
		return err
	}, log.With(logx.String("comp", "scheduler")))

	mc := metrics.New(log.With(logx.String("comp", "metrics")))
	mc.SetPending(store.Pending())

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		backend: backend,
		store:   store,
		notif:   notif,
		flusher: flusher,
		sched:   sched,
		metrics: mc,
		apiCfg:  apiCfg,
		sd:      systemd.NewNotifier(log.With(logx.String("comp", "systemd"))),
	}
	a.server = api.New(apiCfg, api.Deps{
		Router:    router,
		Flusher:   flusher,
		Sender:    notif,
		Store:     store,
		Scheduler: sched,
		Notifier:  notif,
		Metrics:   mc.Handler(),
	}, log.With(logx.String("comp", "http")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Addr is the bound HTTP address once Start returned.
func (a *App) Addr() string {
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// bind before reporting ready so a busy port fails Start
	ln, err := net.Listen("tcp", a.apiCfg.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", a.apiCfg.Addr, err)
	}
	a.ln = ln

	a.sup.Go0("metrics", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.sup.Go0("metrics.pending", a.trackPending)
	a.sup.GoRestart("scheduler", a.sched.Run, rtsup.WithRestartBackoff(time.Second, time.Minute))
	a.server.SetSupervisor(a.sup)
	a.sup.Go("http", func(c context.Context) error { return a.server.Serve(c, ln) })
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", a.sd.RunWatchdog)

	a.sd.Ready()
	a.log.Info("app started", logx.String("addr", ln.Addr().String()))
	return nil
}

// trackPending keeps the pending gauge in step with the buffer.
func (a *App) trackPending(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.TypeRelayCollated, eventbus.TypeFlushDone:
				a.metrics.SetPending(a.store.Pending())
			}
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// cancel first so the server and scheduler start unwinding immediately
	a.sup.Cancel()

	a.step(ctx, "supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 2*time.Second, func(c context.Context) error { return a.backend.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}
