package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"retrodrop_bot/internal/domain"
	"retrodrop_bot/internal/logging"
)

// AccountStore is the persistence the engine needs. Implementations report a
// missing account with domain.ErrUnknownUser.
type AccountStore interface {
	EnsureAccount(ctx context.Context, userID int64) (domain.Account, bool, error)
	GetAccount(ctx context.Context, userID int64) (domain.Account, error)
	ApplyScoreDelta(ctx context.Context, userID int64, delta int) error
	SetLastCheckin(ctx context.Context, userID int64, day time.Time) error
	TopAccounts(ctx context.Context, limit int) ([]domain.Account, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used to decide "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine runs onboarding, check-in and message rules against the store.
type Engine struct {
	accounts AccountStore
	logger   *logrus.Entry
	now      func() time.Time
}

// NewEngine constructs an Engine over the provided store.
func NewEngine(accounts AccountStore, logger *logrus.Entry, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Logger()
	}

	engine := &Engine{
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}

	return engine
}

// Onboard creates the account for userID when missing. Existing accounts are
// returned untouched.
func (e *Engine) Onboard(ctx context.Context, userID int64) (domain.Account, error) {
	if err := e.check(ctx, userID); err != nil {
		return domain.Account{}, err
	}

	account, created, err := e.accounts.EnsureAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("onboard user: %w", err)
	}

	if created {
		e.logger.WithFields(logging.Fields{
			"event":   "account_created",
			"user_id": userID,
		}).Info("created account")
	} else {
		e.logger.WithFields(logging.Fields{
			"event":   "account_seen",
			"user_id": userID,
		}).Debug("account already exists")
	}

	return account, nil
}

// CheckIn grants the daily bonus at most once per UTC calendar date. Unknown
// users get OutcomeMustOnboard and no account is created.
func (e *Engine) CheckIn(ctx context.Context, userID int64) (Outcome, error) {
	if err := e.check(ctx, userID); err != nil {
		return OutcomeNone, err
	}

	account, err := e.accounts.GetAccount(ctx, userID)
	if errors.Is(err, domain.ErrUnknownUser) {
		e.logger.WithFields(logging.Fields{
			"event":   "checkin_unknown_user",
			"user_id": userID,
		}).Info("check-in from user without account")
		return OutcomeMustOnboard, nil
	}
	if err != nil {
		return OutcomeNone, fmt.Errorf("load account: %w", err)
	}

	today := Today(e.now())
	if !CheckinDue(account.LastCheckinDate, today) {
		return OutcomeAlreadyCheckedIn, nil
	}

	// The date is written only after the bonus lands.
	if err := e.accounts.ApplyScoreDelta(ctx, userID, CheckinBonus); err != nil {
		return OutcomeNone, fmt.Errorf("apply check-in bonus: %w", err)
	}
	if err := e.accounts.SetLastCheckin(ctx, userID, today); err != nil {
		return OutcomeNone, fmt.Errorf("record check-in date: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"event":   "checkin_granted",
		"user_id": userID,
		"delta":   CheckinBonus,
		"date":    today.Format(time.DateOnly),
	}).Info("granted daily check-in bonus")

	return OutcomeGranted, nil
}

// ScoreMessage applies the message rule. Messages from users without an
// account are ignored and yield OutcomeNone.
func (e *Engine) ScoreMessage(ctx context.Context, userID int64, text string) (Outcome, error) {
	if err := e.check(ctx, userID); err != nil {
		return OutcomeNone, err
	}

	delta, outcome := EvaluateMessage(text)
	if outcome == OutcomeNone {
		return OutcomeNone, nil
	}

	err := e.accounts.ApplyScoreDelta(ctx, userID, delta)
	if errors.Is(err, domain.ErrUnknownUser) {
		e.logger.WithFields(logging.Fields{
			"event":   "message_unknown_user",
			"user_id": userID,
		}).Debug("ignored message from user without account")
		return OutcomeNone, nil
	}
	if err != nil {
		return OutcomeNone, fmt.Errorf("apply message delta: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"event":   "message_scored",
		"user_id": userID,
		"delta":   delta,
		"outcome": string(outcome),
	}).Info("scored message")

	return outcome, nil
}

// Score returns the current score, or domain.ErrUnknownUser.
func (e *Engine) Score(ctx context.Context, userID int64) (int, error) {
	if err := e.check(ctx, userID); err != nil {
		return 0, err
	}

	account, err := e.accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			return 0, err
		}
		return 0, fmt.Errorf("load account: %w", err)
	}

	return account.Score, nil
}

// Leaderboard returns up to limit accounts ranked by score. A non-positive
// limit falls back to DefaultLeaderboardSize.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]domain.Account, error) {
	if e == nil || e.accounts == nil {
		return nil, errors.New("scoring engine is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}

	accounts, err := e.accounts.TopAccounts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}

	return accounts, nil
}

func (e *Engine) check(ctx context.Context, userID int64) error {
	if e == nil || e.accounts == nil {
		return errors.New("scoring engine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}

	return nil
}
