package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	drepo "FinExec/internal/domain/repository"
	"FinExec/internal/events"
	mid "FinExec/internal/middleware"
	"FinExec/internal/usecase"
	pkgch "FinExec/pkg/clickhouse"
	"FinExec/pkg/config"
	xhttp "FinExec/pkg/http"
	pkgkafka "FinExec/pkg/kafka"
	applogger "FinExec/pkg/logger"
	"FinExec/pkg/queue"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps is everything the App starts and stops. Optional infrastructure is nil
// when disabled.
type Deps struct {
	Config     *config.Config
	Logger     *applogger.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	ClickHouse *pkgch.Client
	Producer   *pkgkafka.Producer
	Bus        *events.Bus
	Publisher  drepo.EventPublisher
	Sink       drepo.ResultSink
	Ledger     *usecase.Ledger
	Processor  *usecase.SignalProcessor
	Twap       *usecase.TwapScheduler
	Ingress    *mid.SignalIngress
	Collector  *usecase.PriceCollector
	Consumer   *pkgkafka.Consumer
	Intake     *queue.RedisQueue
	HTTP       *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	log    *applogger.Logger
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

func New(d Deps) *App {
	return &App{Deps: d, log: d.Logger.With("app")}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start launches background loops, the intake paths and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.goBackground(func() { a.Ledger.RunGC(runCtx) })
	if a.Publisher != nil {
		sub := a.Bus.Subscribe(1024)
		a.goBackground(func() { events.Forward(runCtx, sub, a.Publisher, a.Logger) })
	}

	if a.Config.Processor.AutoStart {
		if err := a.Processor.Start(ctx); err != nil {
			return err
		}
	}
	a.Ingress.Start(runCtx)

	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			// prices can still be seeded; keep serving without the stream
			a.log.Error("price collector start", applogger.Error(err))
		} else {
			a.log.Info("price collector started", applogger.Strings("symbols", a.Config.Exchange.Symbols))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Start(); err != nil {
			return err
		}
	}
	if a.Intake != nil {
		if err := a.Intake.Start(ctx); err != nil {
			return err
		}
	}

	if err := a.HTTP.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("application started",
		applogger.String("env", a.Config.Environment),
		applogger.Bool("auto_start", a.Config.Processor.AutoStart),
		applogger.Bool("kafka", a.Consumer != nil),
		applogger.Bool("redis_intake", a.Intake != nil),
		applogger.Bool("clickhouse", a.ClickHouse != nil))
	return nil
}

// Shutdown stops intake first, then drains processing, then closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	if err := a.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.Intake != nil {
		if err := a.Intake.Stop(ctx); err != nil {
			a.log.Warn("intake queue stop error", applogger.Error(err))
		}
	}
	a.Ingress.Stop()
	if st := a.Ingress.Stats(); st.Pending > 0 {
		a.log.Warn("parked signals dropped on shutdown", applogger.Int("pending", st.Pending))
	}

	if err := a.Processor.Shutdown(ctx); err != nil {
		a.log.Warn("processor shutdown error", applogger.Error(err))
	}
	if err := a.Twap.Close(ctx); err != nil {
		a.log.Warn("twap close error", applogger.Error(err))
	}
	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.Bus.Close()
	a.waitBackground(ctx)

	a.closeClients()
	a.log.Info("shutdown complete")
	return nil
}

func (a *App) closeClients() {
	a.Logger.RemoveCollector()
	if a.Sink != nil {
		if err := a.Sink.Close(); err != nil {
			a.log.Warn("result sink close error", applogger.Error(err))
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.log.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func (a *App) goBackground(fn func()) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("background task panic", applogger.Any("panic", r))
			}
		}()
		fn()
	}()
}

func (a *App) waitBackground(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background tasks still running")
	}
}
