package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pricebot/internal/config"
	"pricebot/internal/eventbus"
	"pricebot/internal/lifecycle"
	"pricebot/internal/metrics"
	"pricebot/internal/notifier"
	"pricebot/internal/observability/metricsrv"
	"pricebot/internal/price"
	rtsup "pricebot/internal/runtime/supervisor"
	"pricebot/internal/storage"
	kit "pricebot/internal/transport"
	telegram "pricebot/internal/transport/telegram/adapter"
	"pricebot/internal/transport/telegram/router"
	logx "pricebot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	notif   *notifier.Service
	msrv    *metricsrv.Service
	cmdm    *router.CommandManager

	// Workers run under their own supervisor so a failing worker never
	// cancels the app.
	workers  *rtsup.Supervisor
	services *lifecycle.Services
	manager  *lifecycle.Manager

	checkersMu sync.RWMutex
	checkers   map[string]*price.Checker

	fetcherOpts []price.FetcherOption

	updates chan kit.Update
}

type Option func(*options)

type options struct {
	adapter     kit.Adapter
	fetcherOpts []price.FetcherOption
	dotenv      []string
}

// WithAdapter replaces the Telegram adapter. Used by tests.
func WithAdapter(ad kit.Adapter) Option { return func(o *options) { o.adapter = ad } }

// WithFetcherOptions is passed to every price fetcher.
func WithFetcherOptions(opts ...price.FetcherOption) Option {
	return func(o *options) { o.fetcherOpts = append(o.fetcherOpts, opts...) }
}

// WithDotEnv sets the .env files loaded before the config. Default ".env".
func WithDotEnv(paths ...string) Option { return func(o *options) { o.dotenv = paths } }

func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{dotenv: []string{".env"}}
	for _, fn := range opts {
		fn(&o)
	}
	if err := config.LoadDotEnv(o.dotenv...); err != nil {
		return nil, err
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	ad := o.adapter
	if ad == nil {
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.PollTimeout(),
		}, bootLog)
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	// logx.New applies the config immediately; set the Telegram target
	// before enabling the sink so Apply does not warn about a missing chat.
	logCfg := cfg.LogConfig()
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(chatTarget(cfg))
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", logx.Err(err))
	}

	bus := eventbus.New()

	store, err := storage.Open(cfg.StoreConfig(), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	notif := notifier.New(cfg.NotifyConfig(), chatTarget(cfg), ad, log.With(logx.String("comp", "notifier")), bus)
	msrv := metricsrv.New(cfg.MetricsServerConfig(), log)
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)

	a := &App{
		cfgPath:     cfgPath,
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		store:       store,
		adapter:     ad,
		notif:       notif,
		msrv:        msrv,
		cmdm:        cmdm,
		checkers:    map[string]*price.Checker{},
		fetcherOpts: o.fetcherOpts,
		updates:     make(chan kit.Update, 256),
	}
	cmdm.Register(a.commands()...)
	return a, nil
}

func chatTarget(cfg *config.Config) kit.ChatTarget {
	return kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
}

// Services returns the worker registry. Nil before Start.
func (a *App) Services() *lifecycle.Services { return a.services }

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

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.msrv.Enabled() {
		a.msrv.Start(a.sup.Context())
	}

	a.workers = rtsup.New(a.sup.Context(), rtsup.WithLogger(a.log.With(logx.String("comp", "workers"))))
	a.services = lifecycle.NewServices(a.store, a.workers,
		lifecycle.WithLogger(a.log.With(logx.String("comp", "lifecycle"))),
		lifecycle.WithBus(a.bus),
	)
	a.manager = lifecycle.NewManager(a.services, a.log.With(logx.String("comp", "lifecycle")))
	if err := a.startWorkers(a.sup.Context(), a.cfgm.Get().Workers); err != nil {
		return err
	}

	a.sup.Go0("commands.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		a.cmdm.SyncMenu(mctx)
	})
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates, 2)
	})

	// Debug-level event log; components subscribe for themselves too.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("workers", a.services.Len()), logx.String("version", Version))
	return nil
}

// startWorkers registers one lifecycle service per configured worker.
// The durable enabled flag wins over the config default. A worker that
// cannot be registered is logged and skipped; only a bad worker definition
// is returned.
func (a *App) startWorkers(ctx context.Context, workers []config.WorkerConfig) error {
	var errs []error
	failed := 0
	for _, w := range workers {
		pace, err := lifecycle.ParsePace(w.Every)
		if err != nil {
			errs = append(errs, fmt.Errorf("worker %q: every: %w", w.Name, err))
			continue
		}
		if err := a.startWorker(ctx, w, pace); err != nil {
			failed++
			metrics.IncStartFailure(w.Name)
			a.log.Error("worker not started", logx.String("name", w.Name), logx.Err(err))
		}
	}
	if failed > 0 {
		a.log.Warn("some workers were not started", logx.Int("failed", failed), logx.Int("total", len(workers)))
	}
	return errors.Join(errs...)
}

func (a *App) startWorker(ctx context.Context, w config.WorkerConfig, pace lifecycle.Pace) error {
	fopts := append([]price.FetcherOption(nil), a.fetcherOpts...)
	if strings.TrimSpace(w.Selector) != "" {
		fopts = append(fopts, price.WithSelector(w.Selector))
	}

	// The checker reads the service's enabled flag, which exists only after
	// CreateService returns; the task itself starts only after the service
	// is registered.
	var svc *lifecycle.Service
	var svcMu sync.Mutex
	enabled := func() bool {
		svcMu.Lock()
		defer svcMu.Unlock()
		return svc != nil && svc.Enabled()
	}
	checker := price.NewChecker(price.CheckerConfig{
		Name:    w.Name,
		Label:   w.Label,
		URL:     w.URL,
		Timeout: config.MustDuration(w.Timeout, 0),
	}, price.NewFetcher(fopts...), a.manager, a.notif,
		price.WithCheckerLogger(a.log.With(logx.String("comp", "price"))),
		price.WithCheckerBus(a.bus),
		price.WithEnabled(enabled),
	)

	started := make(chan struct{})
	s, err := a.services.CreateService(ctx, w.Name, lifecycle.SuspensionConfig{
		Paused: !w.DefaultEnabled(),
		Pace:   pace,
	}, func(c context.Context) error {
		select {
		case <-started:
		case <-c.Done():
			return nil
		}
		return checker.Run(c)
	})
	if err != nil {
		return err
	}
	svcMu.Lock()
	svc = s
	svcMu.Unlock()
	close(started)

	a.checkersMu.Lock()
	a.checkers[w.Name] = checker
	a.checkersMu.Unlock()

	info := s.Info()
	a.log.Info("worker registered",
		logx.String("name", info.Name),
		logx.Bool("enabled", info.Enabled),
		logx.String("pace", info.Pace),
	)
	return nil
}

func (a *App) checker(name string) (*price.Checker, bool) {
	a.checkersMu.RLock()
	defer a.checkersMu.RUnlock()
	c, ok := a.checkers[name]
	return c, ok
}

func (a *App) checkerNames() []string {
	a.checkersMu.RLock()
	defer a.checkersMu.RUnlock()
	out := make([]string, 0, len(a.checkers))
	for n := range a.checkers {
		out = append(out, n)
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Each step is bounded so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("workers", 3*time.Second, func(c context.Context) error {
		if a.workers == nil {
			return nil
		}
		return a.workers.Stop(c)
	})
	step("metrics", 1*time.Second, func(c context.Context) error { a.msrv.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// config watch/reload, command dispatcher, etc.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	if n := a.bus.Dropped(); n > 0 {
		a.log.Warn("event bus dropped events", logx.Uint64("dropped", n))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
