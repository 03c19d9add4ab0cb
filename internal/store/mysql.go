package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"retrodrop_bot/internal/config"
	"retrodrop_bot/internal/domain"
	"retrodrop_bot/internal/logging"
)

const (
	mysqlMaxOpenConns    = 20
	mysqlMaxIdleConns    = 5
	mysqlConnMaxLifetime = 30 * time.Minute
	mysqlConnMaxIdleTime = 10 * time.Minute
)

// openSQL is overridable for tests.
var openSQL = func(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), gormCfg)
}

// SQLManager owns the pooled gorm handle for the MySQL backend. The pool is
// created once at startup and shared by every request.
type SQLManager struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// MySQLDSN builds the driver DSN. Dates are read and written in UTC.
func MySQLDSN(cfg config.Config) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.MySQLUser
	dsn.Passwd = cfg.MySQLPassword
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.MySQLHost, strconv.Itoa(cfg.MySQLPort))
	dsn.DBName = cfg.MySQLDatabase
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}

	return dsn.FormatDSN()
}

// NewSQLManager opens the MySQL pool, applies pool limits and pings the server.
func NewSQLManager(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*SQLManager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	db, err := openSQL(MySQLDSN(cfg), &gorm.Config{
		Logger:                                   logging.GormLogger(logger, cfg.LogLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	manager, err := newSQLManager(db)
	if err != nil {
		return nil, err
	}

	manager.sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
	manager.sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
	manager.sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)
	manager.sqlDB.SetConnMaxIdleTime(mysqlConnMaxIdleTime)

	if err := manager.Ping(ctx); err != nil {
		_ = manager.Close()
		return nil, err
	}

	return manager, nil
}

func newSQLManager(db *gorm.DB) (*SQLManager, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	return &SQLManager{db: db, sqlDB: sqlDB}, nil
}

// DB returns the gorm handle.
func (m *SQLManager) DB() *gorm.DB {
	return m.db
}

// Accounts returns the account store bound to this pool.
func (m *SQLManager) Accounts() *SQLAccounts {
	return NewSQLAccounts(m.db)
}

// Migrate creates the users table when it does not exist and adds missing
// columns to an existing one.
func (m *SQLManager) Migrate(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.db.WithContext(ctx).AutoMigrate(&domain.Account{}); err != nil {
		return fmt.Errorf("migrate %s: %w", domain.TableAccounts, err)
	}

	return nil
}

// Ping checks connectivity of the pool.
func (m *SQLManager) Ping(ctx context.Context) error {
	if m == nil || m.sqlDB == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := m.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}

	return nil
}

// Close releases every pooled connection.
func (m *SQLManager) Close() error {
	if m == nil || m.sqlDB == nil {
		return nil
	}

	return m.sqlDB.Close()
}
