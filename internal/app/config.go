package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/internal/events"
	"github.com/MarkoPoloResearchLab/hotelinventory/internal/lease"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/repricing"
	"github.com/MarkoPoloResearchLab/hotelinventory/pkg/reservation"
)

const (
	defaultDatabaseURL      = "sqlite:///tmp/hoteld.db"
	defaultListenAddr       = ":8080"
	defaultLockWait         = 5 * time.Second
	defaultRepriceInterval  = time.Hour
	defaultSweepInterval    = time.Minute
	defaultRepriceBatchSize = 100
	defaultSweepBatchSize   = 100
	defaultAllowedOrigin    = "http://localhost:8000"
	defaultSessionIssuer    = "tauth"
	defaultSessionCookie    = "app_session"
	defaultAdminRole        = "admin"
	defaultRequestTimeout   = 10 * time.Second
)

// Config aggregates runtime settings for hoteld.
type Config struct {
	DatabaseURL       string
	ListenAddr        string
	LockWait          time.Duration
	HoldWindow        time.Duration
	RepriceInterval   time.Duration
	SweepInterval     time.Duration
	RepriceBatchSize  int
	SweepBatchSize    int
	RequestTimeout    time.Duration
	Holidays          []string
	RedisAddr         string
	RedisKey          string
	LeaseTTL          time.Duration
	AMQPURL           string
	AMQPQueue         string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	AdminRole         string
	LogDevelopment    bool
}

// Validate fills defaults and checks the settings every command needs.
// A zero interval is kept: it disables the matching background loop.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.RedisKey = defaultIfEmpty(cfg.RedisKey, lease.DefaultKey)
	cfg.AMQPQueue = defaultIfEmpty(cfg.AMQPQueue, events.DefaultQueue)
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = reservation.DefaultHoldWindow
	}
	if cfg.RepriceBatchSize <= 0 {
		cfg.RepriceBatchSize = defaultRepriceBatchSize
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaultSweepBatchSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = repricing.DefaultLeaseTTL
	}
	if cfg.RepriceInterval < 0 {
		return fmt.Errorf("reprice interval must not be negative")
	}
	if cfg.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}
	for _, holiday := range cfg.Holidays {
		if _, err := time.Parse(time.DateOnly, holiday); err != nil {
			return fmt.Errorf("holiday %q must be YYYY-MM-DD", holiday)
		}
	}
	return nil
}

// ValidateServer additionally checks the HTTP and session settings.
func (cfg *Config) ValidateServer() error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	cfg.AdminRole = defaultIfEmpty(cfg.AdminRole, defaultAdminRole)
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

// DefaultIntervals returns the loop intervals used when no flag is given.
func DefaultIntervals() (time.Duration, time.Duration) {
	return defaultRepriceInterval, defaultSweepInterval
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseList splits a comma-delimited value into trimmed, non-empty items.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
