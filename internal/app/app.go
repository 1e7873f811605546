// Package app wires the bot together: config, logging, scraper, feed,
// storage, publisher, scheduler, and the operator alert.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tailbot/internal/alert"
	"tailbot/internal/config"
	"tailbot/internal/feed"
	"tailbot/internal/feed/telegram"
	"tailbot/internal/feed/twitter"
	"tailbot/internal/publish"
	"tailbot/internal/runtime/supervisor"
	"tailbot/internal/scheduler"
	"tailbot/internal/scrape"
	"tailbot/internal/storage"
	"tailbot/internal/tracker"
	"tailbot/pkg/logx"
	"tailbot/pkg/sdnotify"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	scraper *scrape.Scraper
	store   storage.Store

	// fd is the active posting driver; tw/tg hold the concrete client so
	// hot reloads can hand the matching section to its Apply.
	fd feed.Feed
	tw *twitter.Client
	tg *telegram.Client

	pub    *publish.Service
	sched  *scheduler.Service
	alerts *alert.Notifier
	trk    *tracker.Tracker
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// Bootstrap with the notify sink disabled: the sink target is the feed
	// driver, which doesn't exist yet. Apply() turns it on below.
	logSvc, log := logx.New(mapLoggingConfig(cfg.Logging, false))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
	}

	if err := a.buildFeed(cfg.Feed); err != nil {
		logSvc.Close()
		return nil, err
	}
	if a.tg != nil {
		logSvc.SetNotifier(a.tg)
	} else if cfg.Logging.Notify.Enabled {
		log.Warn("logging.notify needs the telegram feed driver; staying off")
	}
	logSvc.Apply(mapLoggingConfig(cfg.Logging, a.tg != nil))

	a.scraper, err = scrape.New(cfg.Tail, log.With(logx.String("comp", "scrape")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	pubCfg, err := mapPublishConfig(cfg.Publish)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.pub = publish.New(pubCfg, a.fd, log.With(logx.String("comp", "publish")))

	schedCfg, err := mapScheduleConfig(cfg.Schedule)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.sched = scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	alertCfg, err := mapAlertConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.alerts, err = alert.New(alertCfg, log.With(logx.String("comp", "alert")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	a.trk = tracker.New(tracker.Config{}, a.scraper, a.fd, a.store, a.pub, log.With(logx.String("comp", "tracker")))
	return a, nil
}

func (a *App) buildFeed(fc config.FeedConfig) error {
	log := a.log
	switch strings.ToLower(strings.TrimSpace(fc.Driver)) {
	case "twitter":
		c, err := twitter.New(*fc.Twitter, log.With(logx.String("comp", "twitter")))
		if err != nil {
			return err
		}
		a.tw, a.fd = c, c
	case "telegram":
		c, err := telegram.New(*fc.Telegram, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		a.tg, a.fd = c, c
	default:
		return fmt.Errorf("unknown feed.driver: %s", fc.Driver)
	}
	return nil
}

// Done is closed when the run context is canceled (fatal error or Stop).
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional hot reload: a file that fails validation is never
	// committed or fanned out, so the running config stays intact.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPublishConfig(cfg.Publish); err != nil {
			return err
		}
		if _, err := mapScheduleConfig(cfg.Schedule); err != nil {
			return err
		}
		if _, err := mapAlertConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.pub.Start(a.sup.Context())

	cfg := a.cfgm.Get()
	if err := a.registerSync(cfg.Schedule.Spec); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	} else {
		a.log.Warn("schedule disabled; no syncs will run until enabled")
	}

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return sdnotify.Watchdog(c, a.log)
	})

	sdnotify.Ready(a.log)
	a.log.Info("bot started",
		logx.String("tail", cfg.Tail.TailNumber),
		logx.String("feed", cfg.Feed.Driver),
		logx.Bool("schedule", a.sched.Enabled()),
	)
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(newCfg.Logging, a.tg != nil))

		case "tail":
			if err := a.scraper.Apply(newCfg.Tail); err != nil {
				a.log.Warn("invalid tail config; keeping previous", logx.Err(err))
			}

		case "feed":
			a.applyFeed(newCfg.Feed)

		case "publish":
			pc, err := mapPublishConfig(newCfg.Publish)
			if err != nil {
				a.log.Warn("invalid publish config; keeping previous", logx.Err(err))
				break
			}
			a.pub.Apply(pc)

		case "schedule":
			a.applySchedule(ctx, newCfg.Schedule)

		case "alert":
			ac, err := mapAlertConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid alert config; keeping previous", logx.Err(err))
				break
			}
			if err := a.alerts.Apply(ac); err != nil {
				a.log.Warn("invalid alert config; keeping previous", logx.Err(err))
			}

		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	a.log.Info("config reloaded", fields...)
}

// applyFeed hands the changed section to the running driver. Switching
// drivers swaps the posting account and credentials wholesale, so that
// case requires a restart instead of a live Apply.
func (a *App) applyFeed(fc config.FeedConfig) {
	driver := strings.ToLower(strings.TrimSpace(fc.Driver))
	switch {
	case driver == "twitter" && a.tw != nil:
		if err := a.tw.Apply(*fc.Twitter); err != nil {
			a.log.Warn("invalid twitter config; keeping previous", logx.Err(err))
		}
	case driver == "telegram" && a.tg != nil:
		if err := a.tg.Apply(*fc.Telegram); err != nil {
			a.log.Warn("invalid telegram config; keeping previous", logx.Err(err))
		}
	default:
		a.log.Warn("feed.driver changed; restart required for changes to take effect",
			logx.String("driver", fc.Driver))
	}
}

func (a *App) applySchedule(ctx context.Context, sc config.ScheduleConfig) {
	schedCfg, err := mapScheduleConfig(sc)
	if err != nil {
		a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
		return
	}

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(schedCfg)

	// Re-register under the same name so a spec change replaces the
	// schedule instead of stacking a second one.
	if err := a.registerSync(sc.Spec); err != nil {
		a.log.Warn("invalid schedule spec; keeping previous", logx.Err(err))
	}

	switch {
	case prevEnabled && !schedCfg.Enabled:
		a.log.Info("schedule disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevEnabled && schedCfg.Enabled:
		a.log.Info("schedule enabled via config")
		a.sched.Start(ctx)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdnotify.Stopping(a.log)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step runs one shutdown stage with an upper bound so a stuck
	// component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			// Observe when (or whether) the straggler finishes.
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// Scheduler first so no new syncs start, then drain queued posts.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("publish", 5*time.Second, func(c context.Context) error { a.pub.Stop(c); return nil })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
