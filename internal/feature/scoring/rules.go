// Package scoring applies the point rules for daily check-ins and chat
// messages on top of an account store.
package scoring

import (
	"strings"
	"time"
	"unicode/utf8"

	"retrodrop_bot/internal/domain"
)

// Outcome is the signal a rule produces; the router maps it to a reply.
type Outcome string

const (
	OutcomeNone             Outcome = "none"
	OutcomeGranted          Outcome = "granted"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
	OutcomeMustOnboard      Outcome = "must_onboard"
	OutcomePenalized        Outcome = "penalized"
	OutcomeRewarded         Outcome = "rewarded"
)

const (
	CheckinBonus           = 5
	MessageReward          = 1
	SpamPenalty            = -1
	LongMessageThreshold   = 10
	DefaultLeaderboardSize = 5
)

var spamTokens = map[string]struct{}{
	"gm":   {},
	"gn":   {},
	"spam": {},
}

// Today returns the UTC calendar date of now.
func Today(now time.Time) time.Time {
	return domain.DateOf(now)
}

// CheckinDue reports whether a bonus may be granted on today given the last
// granted date.
func CheckinDue(last *time.Time, today time.Time) bool {
	if last == nil {
		return true
	}

	return domain.DateOf(*last).Before(domain.DateOf(today))
}

// EvaluateMessage maps message text to a score delta. Text is case-folded but
// not trimmed. Spam tokens win over the length reward.
func EvaluateMessage(text string) (int, Outcome) {
	folded := strings.ToLower(text)

	if _, ok := spamTokens[folded]; ok {
		return SpamPenalty, OutcomePenalized
	}
	if utf8.RuneCountInString(folded) > LongMessageThreshold {
		return MessageReward, OutcomeRewarded
	}

	return 0, OutcomeNone
}
