package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"retrodrop_bot/internal/domain"
)

// SQLAccounts persists accounts in the relational users table. Every mutation
// is a single UPDATE statement so concurrent handlers never lose a write.
type SQLAccounts struct {
	db *gorm.DB
}

// NewSQLAccounts constructs an account store over an open gorm handle.
func NewSQLAccounts(db *gorm.DB) *SQLAccounts {
	return &SQLAccounts{db: db}
}

// EnsureAccount inserts a zeroed account when user_id is new and returns the
// stored row. An existing row is never reset.
func (s *SQLAccounts) EnsureAccount(ctx context.Context, userID int64) (domain.Account, bool, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Account{}, false, err
	}

	fresh := domain.Account{UserID: userID}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&fresh)
	if result.Error != nil {
		return domain.Account{}, false, fmt.Errorf("ensure account: %w", result.Error)
	}

	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, false, err
	}

	return account, result.RowsAffected > 0, nil
}

// GetAccount fetches an account by user_id, returning domain.ErrUnknownUser
// when absent.
func (s *SQLAccounts) GetAccount(ctx context.Context, userID int64) (domain.Account, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Account{}, err
	}

	var account domain.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Account{}, domain.ErrUnknownUser
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("find account: %w", err)
	}

	return account, nil
}

// ApplyScoreDelta adds delta to the stored score in place.
func (s *SQLAccounts) ApplyScoreDelta(ctx context.Context, userID int64, delta int) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("user_id = ?", userID).
		UpdateColumn("score", gorm.Expr("score + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("apply score delta: %w", result.Error)
	}

	return s.requireMatched(ctx, userID, result.RowsAffected)
}

// SetLastCheckin overwrites the check-in date with the UTC date of day.
func (s *SQLAccounts) SetLastCheckin(ctx context.Context, userID int64, day time.Time) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("user_id = ?", userID).
		UpdateColumn("last_login", domain.DateOf(day))
	if result.Error != nil {
		return fmt.Errorf("set last checkin: %w", result.Error)
	}

	return s.requireMatched(ctx, userID, result.RowsAffected)
}

// TopAccounts lists accounts by score descending with user_id ascending as
// the tie-break.
func (s *SQLAccounts) TopAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("account store is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if limit <= 0 {
		return []domain.Account{}, nil
	}

	accounts := make([]domain.Account, 0, limit)
	err := s.db.WithContext(ctx).
		Order("score DESC").
		Order("user_id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("find top accounts: %w", err)
	}

	return accounts, nil
}

// CountAccounts returns the number of stored accounts.
func (s *SQLAccounts) CountAccounts(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("account store is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Account{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}

	return count, nil
}

// requireMatched maps a zero-row update to ErrUnknownUser. MySQL reports
// changed rather than matched rows, so an unchanged row is confirmed by lookup.
func (s *SQLAccounts) requireMatched(ctx context.Context, userID int64, affected int64) error {
	if affected > 0 {
		return nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("count account: %w", err)
	}
	if count == 0 {
		return domain.ErrUnknownUser
	}

	return nil
}

func (s *SQLAccounts) check(ctx context.Context, userID int64) error {
	if s == nil || s.db == nil {
		return errors.New("account store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user_id is required")
	}

	return nil
}
