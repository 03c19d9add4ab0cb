package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"retrodrop_bot/internal/domain"
)

type accountCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// MongoAccounts persists accounts as documents keyed by user_id. Mutations use
// $inc/$set so each one is a single atomic document update.
type MongoAccounts struct {
	collection accountCollection
}

// NewMongoAccounts constructs an account store for the provided collection.
func NewMongoAccounts(collection accountCollection) *MongoAccounts {
	return &MongoAccounts{collection: collection}
}

// EnsureAccount upserts a zeroed account when missing and returns the stored
// document.
func (s *MongoAccounts) EnsureAccount(ctx context.Context, userID int64) (domain.Account, bool, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Account{}, false, err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"score":         0,
			"message_count": 0,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("ensure account: %w", err)
	}

	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, false, err
	}

	return account, result != nil && result.UpsertedCount > 0, nil
}

// GetAccount fetches an account by user_id, returning domain.ErrUnknownUser
// when absent.
func (s *MongoAccounts) GetAccount(ctx context.Context, userID int64) (domain.Account, error) {
	if err := s.check(ctx, userID); err != nil {
		return domain.Account{}, err
	}

	result := s.collection.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.Account{}, errors.New("find account returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Account{}, domain.ErrUnknownUser
		}
		return domain.Account{}, fmt.Errorf("find account: %w", err)
	}

	var account domain.Account
	if err := result.Decode(&account); err != nil {
		return domain.Account{}, fmt.Errorf("decode account: %w", err)
	}

	return account, nil
}

// ApplyScoreDelta increments the stored score by delta.
func (s *MongoAccounts) ApplyScoreDelta(ctx context.Context, userID int64, delta int) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$inc": bson.M{"score": delta}},
	)
	if err != nil {
		return fmt.Errorf("apply score delta: %w", err)
	}

	return requireMatchedDocument(result)
}

// SetLastCheckin overwrites the check-in date with the UTC date of day.
func (s *MongoAccounts) SetLastCheckin(ctx context.Context, userID int64, day time.Time) error {
	if err := s.check(ctx, userID); err != nil {
		return err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"last_login": domain.DateOf(day)}},
	)
	if err != nil {
		return fmt.Errorf("set last checkin: %w", err)
	}

	return requireMatchedDocument(result)
}

// TopAccounts lists accounts by score descending with user_id ascending as
// the tie-break.
func (s *MongoAccounts) TopAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	if s == nil || s.collection == nil {
		return nil, errors.New("account store is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if limit <= 0 {
		return []domain.Account{}, nil
	}

	cursor, err := s.collection.Find(ctx, bson.D{},
		options.Find().
			SetSort(bson.D{{Key: "score", Value: -1}, {Key: "user_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("find top accounts: %w", err)
	}

	accounts := make([]domain.Account, 0, limit)
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("decode top accounts: %w", err)
	}

	return accounts, nil
}

// CountAccounts returns the number of stored accounts.
func (s *MongoAccounts) CountAccounts(ctx context.Context) (int64, error) {
	if s == nil || s.collection == nil {
		return 0, errors.New("account store is not initialized")
	}
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	count, err := s.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}

	return count, nil
}

func (s *MongoAccounts) check(ctx context.Context, userID int64) error {
	if s == nil || s.collection == nil {
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

func requireMatchedDocument(result *mongo.UpdateResult) error {
	if result == nil || result.MatchedCount == 0 {
		return domain.ErrUnknownUser
	}

	return nil
}
