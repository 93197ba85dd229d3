// Package app wires the notiq daemon: config, logging, broker,
// dispatcher and delivery worker, with hot reload and graceful stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notiq/internal/config"
	"notiq/internal/delivery"
	"notiq/internal/notify"
	"notiq/internal/queue"
	"notiq/internal/upload"
	"notiq/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	sched  *queue.Scheduler
	disp   *notify.Dispatcher
	worker *delivery.Worker

	metricsSrv *http.Server
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logx())
	log = log.With(logx.String("comp", "app"))

	var uploader upload.Uploader
	if strings.TrimSpace(cfg.Upload.Endpoint) != "" {
		cl, err := upload.NewClient(upload.Config{
			Endpoint: cfg.Upload.Endpoint,
			Token:    cfg.Upload.Token,
			Timeout:  cfg.UploadTimeout(),
		}, log.With(logx.String("comp", "upload")))
		if err != nil {
			return nil, err
		}
		uploader = cl
	}

	disp := notify.NewDispatcher(uploader, log.With(logx.String("comp", "notify")))
	worker := delivery.NewWorker(disp, log.With(logx.String("comp", "delivery")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		disp:    disp,
		worker:  worker,
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{
			Addr:         cfg.MetricsAddr(),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}
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

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	cfg := a.cfgm.Get()
	if cfg == nil {
		return fmt.Errorf("app: no config loaded")
	}

	sched, err := queue.Connect(queue.Config{
		URL:         cfg.Broker.URL,
		QueuePrefix: cfg.QueuePrefix(),
		Confirms:    cfg.Broker.Confirms,
	}, a.log.With(logx.String("comp", "queue")))
	if err != nil {
		return fmt.Errorf("app: broker connect: %w", err)
	}
	a.sched = sched
	a.worker.SetRequeue(a.sched, cfg.DeliveryQueue())

	if err := a.sched.Subscribe(cfg.DeliveryQueue(), a.worker.Handle); err != nil {
		_ = a.sched.Close()
		return fmt.Errorf("app: subscribe %q: %w", cfg.DeliveryQueue(), err)
	}

	if a.metricsSrv != nil {
		a.sup.Go("metrics.http", func(c context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- a.metricsSrv.ListenAndServe() }()
			select {
			case <-c.Done():
				shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = a.metricsSrv.Shutdown(shutCtx)
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		})
		a.log.Info("metrics listening", logx.String("addr", a.metricsSrv.Addr))
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// hot reload config fan-out
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
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}

				a.logs.Apply(newCfg.Logx())

				// Broker and metrics settings bind at startup.
				for _, s := range sections {
					if s == "broker" || s == "metrics" || s == "delivery" {
						a.log.Warn("config change requires restart to take effect",
							logx.String("section", s))
					}
				}

				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
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
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("queue", 3*time.Second, func(context.Context) error {
		if a.sched != nil {
			return a.sched.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Stop(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
