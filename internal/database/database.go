// Package database opens the relational database named by a URL.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/hotelinventory/internal/store/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	defaultSQLiteFile = "hoteld.db"
	sqlitePragmas     = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
)

// Connection is an open database and the driver it was opened with.
type Connection struct {
	DB     *gorm.DB
	Driver string
	close  func() error
}

// Close releases the underlying connection pool.
func (connection *Connection) Close() error {
	if connection == nil || connection.close == nil {
		return nil
	}
	return connection.close()
}

// Target is a parsed database URL.
type Target struct {
	Driver string
	DSN    string
}

// Resolve maps a database URL onto a driver and the DSN that driver expects.
// A value without a scheme is treated as a SQLite file path.
func Resolve(rawURL string) (Target, error) {
	trimmed := strings.TrimSpace(rawURL)
	switch {
	case trimmed == "":
		return Target{}, fmt.Errorf("database url is required")
	case strings.HasPrefix(trimmed, "memory://"):
		return Target{Driver: DriverMemory}, nil
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return Target{Driver: DriverPostgres, DSN: trimmed}, nil
	case strings.HasPrefix(trimmed, "mysql://"):
		dsn, err := normalizeMySQLDSN(strings.TrimPrefix(trimmed, "mysql://"))
		if err != nil {
			return Target{}, err
		}
		return Target{Driver: DriverMySQL, DSN: dsn}, nil
	case strings.HasPrefix(trimmed, "sqlite://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return Target{}, fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		return sqliteTarget(path)
	case strings.Contains(trimmed, "://"):
		return Target{}, fmt.Errorf("unsupported database scheme in %q", trimmed)
	}
	return sqliteTarget(trimmed)
}

// normalizeMySQLDSN forces time parsing in UTC so DATE and DATETIME columns
// scan into time.Time.
func normalizeMySQLDSN(raw string) (string, error) {
	config, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	config.ParseTime = true
	config.Loc = time.UTC
	return config.FormatDSN(), nil
}

func sqliteTarget(path string) (Target, error) {
	sqlitePath, err := normalizeSQLitePath(path)
	if err != nil {
		return Target{}, err
	}
	if sqlitePath == ":memory:" {
		return Target{Driver: DriverSQLite, DSN: sqlitePath}, nil
	}
	return Target{Driver: DriverSQLite, DSN: sqlitePath + "?" + sqlitePragmas}, nil
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}

// Open connects to a relational target. The memory driver has no database and
// is rejected here; callers build an in-process store for it instead.
func Open(ctx context.Context, target Target) (*Connection, error) {
	config := &gorm.Config{}
	var (
		db  *gorm.DB
		err error
	)
	switch target.Driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(target.DSN), config)
	case DriverMySQL:
		db, err = gorm.Open(gormmysql.Open(target.DSN), config)
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(target.DSN), config)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", target.Driver)
	}
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if target.Driver == DriverSQLite {
		// SQLite allows one writer; a single connection queues transactions.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", target.Driver, err)
	}
	return &Connection{
		DB:     db,
		Driver: target.Driver,
		close:  sqlDB.Close,
	}, nil
}

// Migrate creates or updates the store schema.
func Migrate(connection *Connection) error {
	if err := gormstore.Migrate(connection.DB); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
