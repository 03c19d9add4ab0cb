package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"retrodrop_bot/internal/config"
	"retrodrop_bot/internal/domain"
	"retrodrop_bot/internal/logging"
)

// Accounts is the account persistence contract implemented by SQLAccounts
// and MongoAccounts.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID int64) (domain.Account, bool, error)
	GetAccount(ctx context.Context, userID int64) (domain.Account, error)
	ApplyScoreDelta(ctx context.Context, userID int64, delta int) error
	SetLastCheckin(ctx context.Context, userID int64, day time.Time) error
	TopAccounts(ctx context.Context, limit int) ([]domain.Account, error)
	CountAccounts(ctx context.Context) (int64, error)
}

// Backend bundles the configured account store with its connection lifecycle.
type Backend struct {
	driver   string
	accounts Accounts
	ping     func(context.Context) error
	close    func(context.Context) error
}

// Open connects the backend selected by cfg.StoreDriver and prepares its
// schema (table migration for MySQL, indexes for Mongo).
func Open(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Backend, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	switch cfg.StoreDriver {
	case config.DriverMySQL, "":
		manager, err := NewSQLManager(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := manager.Migrate(ctx); err != nil {
			_ = manager.Close()
			return nil, err
		}

		logger.WithFields(logging.Fields{
			"event": "store_ready",
			"store": config.DriverMySQL,
			"table": domain.TableAccounts,
		}).Info("mysql account store ready")

		return &Backend{
			driver:   config.DriverMySQL,
			accounts: manager.Accounts(),
			ping:     manager.Ping,
			close: func(context.Context) error {
				return manager.Close()
			},
		}, nil

	case config.DriverMongo:
		manager, err := NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := manager.EnsureBaseIndexes(ctx); err != nil {
			_ = manager.Close(ctx)
			return nil, err
		}

		logger.WithFields(logging.Fields{
			"event":      "store_ready",
			"store":      config.DriverMongo,
			"collection": domain.CollectionAccounts,
		}).Info("mongo account store ready")

		return &Backend{
			driver:   config.DriverMongo,
			accounts: NewMongoAccounts(manager.Accounts()),
			ping:     manager.Ping,
			close:    manager.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// Driver names the active backend.
func (b *Backend) Driver() string {
	return b.driver
}

// Accounts returns the account store.
func (b *Backend) Accounts() Accounts {
	return b.accounts
}

// Ping checks backend connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	if b == nil || b.ping == nil {
		return errors.New("store backend is not initialized")
	}

	return b.ping(ctx)
}

// Close releases the backend connections.
func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.close == nil {
		return nil
	}

	return b.close(ctx)
}
