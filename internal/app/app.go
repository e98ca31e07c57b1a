// Package app wires hoteld's stores, engine, background loops and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/internal/database"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/events"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/httpapi"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/lease"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/oplog"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/pricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// engineStore is what both store implementations provide.
type engineStore interface {
	reservation.Store
	repricing.Store
	httpapi.MinPriceReader
}

// Runtime holds the wired components of one process.
type Runtime struct {
	Logger    *zap.Logger
	Service   *reservation.Service
	Scheduler *repricing.Scheduler
	MinPrices httpapi.MinPriceReader
	Registry  *prometheus.Registry
	closers   []func() error
}

// NewLogger returns the production zap logger, or the development one when asked.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Build opens the store and optional integrations and wires the engine.
// The caller must Close the runtime.
func Build(ctx context.Context, cfg Config, logger *zap.Logger) (*Runtime, error) {
	runtime := &Runtime{Logger: logger, Registry: prometheus.NewRegistry()}
	runtime.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := runtime.openStore(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, runtime.Close())
	}
	runtime.MinPrices = store

	serviceOptions := []reservation.ServiceOption{
		reservation.WithOperationLogger(oplog.New(logger)),
		reservation.WithHoldWindow(cfg.HoldWindow),
		reservation.WithSweepBatchSize(cfg.SweepBatchSize),
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, errors.Join(err, runtime.Close())
		}
		runtime.closers = append(runtime.closers, publisher.Close)
		serviceOptions = append(serviceOptions, reservation.WithEventPublisher(publisher))
		logger.Info("booking events enabled", zap.String("queue", cfg.AMQPQueue))
	}
	service, err := reservation.NewService(store, time.Now, serviceOptions...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("reservation service init: %w", err), runtime.Close())
	}
	runtime.Service = service

	calendar, err := pricing.ParseFixedCalendar(cfg.Holidays)
	if err != nil {
		return nil, errors.Join(err, runtime.Close())
	}
	schedulerOptions := []repricing.Option{
		repricing.WithLogger(logger),
		repricing.WithBatchSize(cfg.RepriceBatchSize),
		repricing.WithMetrics(repricing.NewMetrics(runtime.Registry)),
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		runtime.closers = append(runtime.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, errors.Join(fmt.Errorf("redis ping: %w", err), runtime.Close())
		}
		schedulerOptions = append(schedulerOptions, repricing.WithRunLock(lease.New(client, cfg.RedisKey), cfg.LeaseTTL))
		logger.Info("repricing lease enabled", zap.String("key", cfg.RedisKey))
	}
	scheduler, err := repricing.NewScheduler(store, pricing.Default(time.Now, calendar), time.Now, schedulerOptions...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("repricing scheduler init: %w", err), runtime.Close())
	}
	runtime.Scheduler = scheduler
	return runtime, nil
}

func (runtime *Runtime) openStore(ctx context.Context, cfg Config) (engineStore, error) {
	target, err := database.Resolve(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if target.Driver == database.DriverMemory {
		runtime.Logger.Warn("using in-memory store; state is lost on exit")
		return memstore.New(memstore.WithLockWait(cfg.LockWait)), nil
	}
	connection, err := database.Open(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	runtime.closers = append(runtime.closers, connection.Close)
	if err := database.Migrate(connection); err != nil {
		return nil, err
	}
	runtime.Logger.Info("database ready", zap.String("driver", connection.Driver))
	return gormstore.New(connection.DB, gormstore.WithLockWait(cfg.LockWait)), nil
}

// Close releases integrations in reverse order of opening.
func (runtime *Runtime) Close() error {
	var joined error
	for index := len(runtime.closers) - 1; index >= 0; index-- {
		joined = errors.Join(joined, runtime.closers[index]())
	}
	runtime.closers = nil
	return joined
}

// Serve runs the HTTP API plus the repricing and sweep loops until ctx ends.
func Serve(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	runtime, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			logger.Warn("runtime close error", zap.Error(closeErr))
		}
	}()

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	router, err := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		AdminRole:      cfg.AdminRole,
		RequestTimeout: cfg.RequestTimeout,
	}, httpapi.Dependencies{
		Logger:     logger,
		Bookings:   runtime.Service,
		MinPrices:  runtime.MinPrices,
		Repricer:   runtime.Scheduler,
		Registerer: runtime.Registry,
		Gatherer:   runtime.Registry,
	}, validator)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	startLoop(groupCtx, group, logger, "repricing", cfg.RepriceInterval, func(ctx context.Context) error {
		_, err := runtime.Scheduler.Run(ctx)
		return err
	})
	startLoop(groupCtx, group, logger, "sweep", cfg.SweepInterval, func(ctx context.Context) error {
		_, err := runtime.Service.ExpireStaleBookings(ctx)
		return err
	})
	group.Go(func() error {
		return httpapi.Serve(groupCtx, cfg.ListenAddr, router, logger)
	})
	return group.Wait()
}

// RunReprice performs a single repricing run.
func RunReprice(ctx context.Context, cfg Config, logger *zap.Logger) (repricing.Report, error) {
	if err := cfg.Validate(); err != nil {
		return repricing.Report{}, err
	}
	runtime, err := Build(ctx, cfg, logger)
	if err != nil {
		return repricing.Report{}, err
	}
	report, runErr := runtime.Scheduler.Run(ctx)
	return report, errors.Join(runErr, runtime.Close())
}

// RunSweep expires every stale pending booking once.
func RunSweep(ctx context.Context, cfg Config, logger *zap.Logger) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	runtime, err := Build(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	expired, runErr := runtime.Service.ExpireStaleBookings(ctx)
	return expired, errors.Join(runErr, runtime.Close())
}

// startLoop runs task now and then every interval until ctx ends. Task errors
// are logged, never returned. A zero interval disables the loop.
func startLoop(ctx context.Context, group *errgroup.Group, logger *zap.Logger, name string, interval time.Duration, task func(ctx context.Context) error) {
	if interval <= 0 {
		logger.Info("background loop disabled", zap.String("loop", name))
		return
	}
	group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := task(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("background loop failed", zap.String("loop", name), zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}
