package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/hotelinventory/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL      = "database-url"
	flagLockWait         = "lock-wait"
	flagHoldWindow       = "hold-window"
	flagRepriceBatchSize = "reprice-batch-size"
	flagSweepBatchSize   = "sweep-batch-size"
	flagHolidays         = "holidays"
	flagRedisAddr        = "redis-addr"
	flagRedisKey         = "redis-key"
	flagLeaseTTL         = "lease-ttl"
	flagAMQPURL          = "amqp-url"
	flagAMQPQueue        = "amqp-queue"
	flagLogDevelopment   = "log-development"
	flagListenAddr       = "listen-addr"
	flagRepriceInterval  = "reprice-interval"
	flagSweepInterval    = "sweep-interval"
	flagRequestTimeout   = "request-timeout"
	flagAllowedOrigins   = "allowed-origins"
	flagJWTSigningKey    = "jwt-signing-key"
	flagJWTIssuer        = "jwt-issuer"
	flagJWTCookieName    = "jwt-cookie-name"
	flagAdminRole        = "admin-role"
	envPrefix            = "HOTELD"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hoteld: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &app.Config{}
	cmd := &cobra.Command{
		Use:           "hoteld",
		Short:         "Hotel inventory reservation and pricing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "", "database URL: postgres://, mysql://, sqlite:// or memory://")
	flags.Duration(flagLockWait, 0, "maximum wait for an inventory row lock (default 5s)")
	flags.Duration(flagHoldWindow, 0, "how long a pending booking holds inventory (default 10m)")
	flags.Int(flagRepriceBatchSize, 0, "hotels loaded per repricing page (default 100)")
	flags.Int(flagSweepBatchSize, 0, "stale bookings expired per sweep page (default 100)")
	flags.String(flagHolidays, "", "comma-separated holiday dates (YYYY-MM-DD)")
	flags.String(flagRedisAddr, "", "Redis address for the repricing lease (optional)")
	flags.String(flagRedisKey, "", "Redis key of the repricing lease")
	flags.Duration(flagLeaseTTL, 0, "repricing lease TTL (default 30m)")
	flags.String(flagAMQPURL, "", "RabbitMQ URL for booking events (optional)")
	flags.String(flagAMQPQueue, "", "RabbitMQ queue for booking events")
	flags.Bool(flagLogDevelopment, false, "use the human-readable development logger")

	cmd.AddCommand(newServeCommand(cfg), newRepriceCommand(cfg), newSweepCommand(cfg))
	return cmd
}

func newServeCommand(cfg *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the repricing and sweep loops",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger, err := app.NewLogger(cfg.LogDevelopment)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return app.Serve(ctx, *cfg, logger)
		},
	}

	repriceInterval, sweepInterval := app.DefaultIntervals()
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :8080)")
	cmd.Flags().Duration(flagRepriceInterval, repriceInterval, "interval between repricing runs, 0 disables")
	cmd.Flags().Duration(flagSweepInterval, sweepInterval, "interval between expiry sweeps, 0 disables")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request engine timeout (default 10s)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().String(flagAdminRole, "", "session role allowed on /api/admin")
	return cmd
}

func newRepriceCommand(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reprice",
		Short: "Run one repricing pass and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger, err := app.NewLogger(cfg.LogDevelopment)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			report, err := app.RunReprice(ctx, *cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("repricing finished",
				zap.Bool("skipped", report.Skipped),
				zap.Int("hotels_processed", report.HotelsProcessed),
				zap.Int("hotels_failed", report.HotelsFailed),
				zap.Int("cells_repriced", report.CellsRepriced),
				zap.Int("min_prices_removed", report.MinPricesRemoved),
			)
			if report.HotelsFailed > 0 {
				return fmt.Errorf("%d hotels failed to reprice", report.HotelsFailed)
			}
			return nil
		},
	}
}

func newSweepCommand(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending bookings once and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger, err := app.NewLogger(cfg.LogDevelopment)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			expired, err := app.RunSweep(ctx, *cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("sweep finished", zap.Int("expired", expired))
			return nil
		},
	}
}

// loadConfig binds every flag visible to cmd to its HOTELD_ environment variable.
func loadConfig(cmd *cobra.Command, cfg *app.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.LockWait = v.GetDuration(flagLockWait)
	cfg.HoldWindow = v.GetDuration(flagHoldWindow)
	cfg.RepriceBatchSize = v.GetInt(flagRepriceBatchSize)
	cfg.SweepBatchSize = v.GetInt(flagSweepBatchSize)
	cfg.Holidays = app.ParseList(v.GetString(flagHolidays))
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.RedisKey = strings.TrimSpace(v.GetString(flagRedisKey))
	cfg.LeaseTTL = v.GetDuration(flagLeaseTTL)
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPQueue = strings.TrimSpace(v.GetString(flagAMQPQueue))
	cfg.LogDevelopment = v.GetBool(flagLogDevelopment)
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.RepriceInterval = v.GetDuration(flagRepriceInterval)
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.AllowedOrigins = app.ParseList(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))
	cfg.AdminRole = strings.TrimSpace(v.GetString(flagAdminRole))

	return cfg.Validate()
}
