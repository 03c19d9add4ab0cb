// Package domain defines shared domain constants and types.
package domain

import (
	"errors"
	"time"
)

const (
	// TableAccounts is the relational table holding one row per sender.
	TableAccounts = "users"
	// CollectionAccounts is the Mongo collection holding one document per sender.
	CollectionAccounts = "users"
)

// ErrUnknownUser is returned when an operation targets a user_id with no account.
var ErrUnknownUser = errors.New("unknown user")

// Account is the persisted scoring record of a single Telegram sender.
type Account struct {
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement:false" bson:"user_id" json:"user_id"`
	Score  int   `gorm:"column:score;not null;default:0" bson:"score" json:"score"`
	// LastCheckinDate is a calendar date stored as midnight UTC; nil until the
	// first granted daily bonus.
	LastCheckinDate *time.Time `gorm:"column:last_login;type:date" bson:"last_login,omitempty" json:"last_checkin_date,omitempty"`
	// MessageCount is kept for schema compatibility; no rule reads it.
	MessageCount int `gorm:"column:message_count;not null;default:0" bson:"message_count" json:"message_count"`
}

// TableName pins the gorm table name.
func (Account) TableName() string {
	return TableAccounts
}

// CheckedInOn reports whether the last granted check-in falls on the same UTC
// calendar date as day.
func (a Account) CheckedInOn(day time.Time) bool {
	if a.LastCheckinDate == nil {
		return false
	}

	return SameDate(*a.LastCheckinDate, day)
}

// DateOf truncates t to midnight UTC of its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate compares two instants by UTC calendar date.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
