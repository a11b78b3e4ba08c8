package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	logrus "github.com/sirupsen/logrus"

	"privacymixer/internal/business"
	"privacymixer/internal/ledger"
	"privacymixer/internal/observability"
	"privacymixer/internal/privacy"
	"privacymixer/internal/relayer"
	"privacymixer/internal/repository"
	"privacymixer/internal/routes"
	"privacymixer/internal/schedule"
	"privacymixer/internal/worker"
	"privacymixer/pkg/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load config: ", err)
	}
	if err := config.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("")
	l := ledger.New(
		ledger.WithDefaultCurrency(cfg.DefaultCurrency),
		ledger.WithDefaultLockSeconds(cfg.DefaultLockSeconds),
	)

	opts := []business.Option{
		business.WithFeeRate(cfg.FeeRate),
		business.WithMetrics(metrics),
		business.WithCalculator(privacy.Calculator{
			StablecoinRate: cfg.StablecoinRate,
			HighValueRate:  cfg.HighValueRate,
		}),
		business.WithEstimator(relayer.Estimator{
			GasLimit:      cfg.Relayer.GasLimit,
			GasBuffer:     cfg.Relayer.GasBuffer,
			GasPriceGwei:  cfg.Relayer.GasPriceGwei,
			RelayerMarkup: cfg.Relayer.Markup,
		}),
	}

	// Initialize database (optional)
	var repo *repository.GormRepository
	if cfg.DB.Enabled() {
		db, err := config.InitDB(cfg.DB)
		if err != nil {
			logrus.Fatal("Failed to connect to database: ", err)
		}
		if err := config.ExecuteMigrations(db); err != nil {
			logrus.Fatal("Failed to run migrations: ", err)
		}
		repo = repository.New(db)
		opts = append(opts, business.WithRepository(repo))
	} else {
		logrus.Warn("Database not configured, ledger state will not be mirrored")
	}

	// Initialize RabbitMQ (optional)
	var conn *amqp.Connection
	if cfg.RabbitMQ.Enabled() {
		conn, err = config.InitRabbitMQ(cfg.RabbitMQ)
		if err != nil {
			logrus.Fatal(err)
		}
		defer conn.Close()

		publisher, err := config.NewPublisher(conn)
		if err != nil {
			logrus.Fatal("Failed to create publisher: ", err)
		}
		defer publisher.Close()
		opts = append(opts, business.WithPublisher(publisher, cfg.EventQueue))
	} else {
		logrus.Warn("RabbitMQ not configured, command queue disabled")
	}

	svc := business.NewMixerService(l, opts...)

	if err := svc.Restore(ctx); err != nil {
		logrus.Fatal("Failed to restore ledger: ", err)
	}
	if cfg.SeedDemo && len(svc.AllPoolStats()) == 0 {
		if _, err := svc.ResetDemo(ctx); err != nil {
			logrus.Fatal("Failed to seed demo pools: ", err)
		}
	}

	// Snapshot schedule
	var store schedule.SnapshotStore
	if repo != nil {
		store = repo
	}
	scheduler, err := schedule.NewSnapshotJob(svc, store, metrics).Start(ctx, cfg.SnapshotSchedule)
	if err != nil {
		logrus.Fatal(err)
	}
	defer scheduler.Stop()

	var wg sync.WaitGroup

	// Command consumer
	if conn != nil {
		msgConsumer, err := config.NewConsumer(conn, cfg.CommandQueue)
		if err != nil {
			logrus.Fatal("Failed to create consumer: ", err)
		}
		defer msgConsumer.Close()

		handler := worker.NewCommandHandler(svc, metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := msgConsumer.Consume(ctx, handler.Func(ctx)); err != nil {
				logrus.Errorf("Consumer stopped: %v", err)
				stop()
			}
		}()
	}

	// Ops server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: routes.SetupRouter(metrics, ctx.Done()),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Ops server failed: %v", err)
			stop()
		}
	}()

	logrus.WithField("port", cfg.Port).Info("Mixer ledger started")
	<-ctx.Done()
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Ops server shutdown: %v", err)
	}
	wg.Wait()
}
