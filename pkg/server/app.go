package server

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PivotScan/internal/usecase"
	pkgch "PivotScan/pkg/clickhouse"
	"PivotScan/pkg/config"
	xhttp "PivotScan/pkg/http"
	pkgkafka "PivotScan/pkg/kafka"
	applogger "PivotScan/pkg/logger"
	pkgqueue "PivotScan/pkg/queue"
)

// App owns every long-lived component: the feed collector, the tick
// consumer, the evaluation loop, the warmup queue, and the read API.
// Run brings them up in dependency order, blocks on a signal, and
// stops them in reverse.
type App struct {
	cfg           *config.Config
	l             *applogger.Logger
	collector     *usecase.TickCollector
	ticksConsumer *pkgkafka.Consumer
	tickHandler   pkgkafka.MessageHandler
	ch            *pkgch.Client
	evaluator     *usecase.Evaluator
	warmup        *pkgqueue.RedisQueue
	web           *xhttp.Server
	routes        xhttp.Handler
	evalCancel    context.CancelFunc
	TickProc      *usecase.TickProcessor
}

func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	evaluator *usecase.Evaluator,
	warmup *pkgqueue.RedisQueue,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:           cfg,
		l:             l,
		collector:     collector,
		ticksConsumer: consumer,
		tickHandler:   kh,
		ch:            chClient,
		evaluator:     evaluator,
		warmup:        warmup,
		routes:        handler,
	}
}

// Run starts every wired component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.l
	if l == nil {
		// startup must never be silent
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("fallback logger: %v", err)
			return err
		}
	}

	a.web = xhttp.NewServer(a.routes,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(l, time.Second),
	)

	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("feed collector stopped", applogger.Error(err))
		}
	}()
	l.Info("feed collector up", applogger.Strings("instruments", a.cfg.Feed.Instruments))

	if a.ticksConsumer != nil && a.tickHandler != nil {
		a.ticksConsumer.RegisterHandler(a.tickHandler)
		go func() {
			if err := a.ticksConsumer.Start(); err != nil {
				l.Error("tick consumer stopped", applogger.Error(err))
			}
		}()
		l.Info("tick consumer up", applogger.String("topic", a.tickHandler.Topic()))
	}

	if a.evaluator != nil {
		evalCtx, evalCancel := context.WithCancel(ctx)
		a.evalCancel = evalCancel
		go func() {
			if err := a.evaluator.Run(evalCtx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error("evaluation loop stopped", applogger.Error(err))
			}
		}()
		l.Info("evaluation loop up", applogger.Strings("instruments", a.evaluator.Instruments()))
	}

	// Seed one warmup job per instrument so the bar history fills
	// before the first evaluation rounds.
	if a.warmup != nil {
		if err := a.warmup.Start(); err != nil {
			l.Warn("warmup queue unavailable", applogger.Error(err))
		} else {
			a.warmup.StartRetryProcessor()
			if err := usecase.EnqueueWarmup(ctx, a.warmup, a.cfg.Feed.Instruments, a.cfg.Engine.Warmup.Window); err != nil {
				l.Warn("warmup jobs not enqueued", applogger.Error(err))
			}
		}
	}

	if err := a.web.Start(); err != nil {
		l.Error("http server did not start", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("signal received, stopping")
	return a.shutdown(ctx, l)
}

// shutdown stops components in reverse dependency order so nothing
// writes to a closed sink.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	// Evaluation first, before its inputs go away.
	if a.evalCancel != nil {
		a.evalCancel()
	}

	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("feed collector stop", applogger.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.web.Stop(stopCtx); err != nil {
		l.Error("http server stop", applogger.Error(err))
	}

	if a.warmup != nil {
		if err := a.warmup.Stop(stopCtx); err != nil {
			l.Warn("warmup queue stop", applogger.Error(err))
		}
	}

	// The consumer feeds ClickHouse, so it stops before the client
	// closes.
	if a.ticksConsumer != nil {
		if err := a.ticksConsumer.Stop(ctx); err != nil {
			l.Warn("tick consumer stop", applogger.Error(err))
		}
	}

	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			l.Warn("clickhouse close", applogger.Error(err))
		}
	}

	// Flush the error summary feed while its Kafka publisher is alive.
	if a.l != nil {
		a.l.DetachCollector()
	}

	// The signal sink shares the tick producer, so both close through
	// this path.
	if a.TickProc != nil {
		a.TickProc.Close()
	}

	l.Info("all services stopped")
	return nil
}
