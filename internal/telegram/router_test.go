package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrodrop_bot/internal/domain"
	"retrodrop_bot/internal/feature/scoring"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*bot.SendMessageParams
	err  error
}

func (s *recordingSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, params)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Message{Text: params.Text}, nil
}

func (s *recordingSender) last(t *testing.T) *bot.SendMessageParams {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	require.NotEmpty(t, s.sent, "expected a reply to be sent")
	return s.sent[len(s.sent)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

type stubScorer struct {
	onboarded []int64
	onboardErr error

	checkinOutcome scoring.Outcome
	checkinErr     error
	checkins       []int64

	messageOutcome scoring.Outcome
	messageErr     error
	messages       []string

	score    int
	scoreErr error

	leaders   []domain.Account
	leaderErr error
	limit     int
}

func (s *stubScorer) Onboard(_ context.Context, userID int64) (domain.Account, error) {
	s.onboarded = append(s.onboarded, userID)
	return domain.Account{UserID: userID}, s.onboardErr
}

func (s *stubScorer) CheckIn(_ context.Context, userID int64) (scoring.Outcome, error) {
	s.checkins = append(s.checkins, userID)
	return s.checkinOutcome, s.checkinErr
}

func (s *stubScorer) ScoreMessage(_ context.Context, _ int64, text string) (scoring.Outcome, error) {
	s.messages = append(s.messages, text)
	if s.messageOutcome == "" {
		return scoring.OutcomeNone, s.messageErr
	}
	return s.messageOutcome, s.messageErr
}

func (s *stubScorer) Score(context.Context, int64) (int, error) {
	return s.score, s.scoreErr
}

func (s *stubScorer) Leaderboard(_ context.Context, limit int) ([]domain.Account, error) {
	s.limit = limit
	return s.leaders, s.leaderErr
}

func newTestRouter(scorer Scorer, targetChatID int64) (*Router, *recordingSender, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sender := &recordingSender{}

	return NewRouter(scorer, sender, logrus.NewEntry(logger), targetChatID), sender, hook
}

func messageUpdate(userID, chatID int64, firstName, text string) *models.Update {
	msg := &models.Message{
		Chat: models.Chat{ID: chatID},
		Text: text,
	}
	if userID != 0 {
		msg.From = &models.User{ID: userID, FirstName: firstName}
	}

	return &models.Update{Message: msg}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text    string
		name    string
		command bool
	}{
		{text: "/start", name: "start", command: true},
		{text: "/LOGIN", name: "login", command: true},
		{text: "/score@RetrodropBot", name: "score", command: true},
		{text: "/leaderboard 10", name: "leaderboard", command: true},
		{text: "hello /start", command: false},
		{text: "gm", command: false},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			name, ok := parseCommand(tc.text)
			assert.Equal(t, tc.command, ok)
			assert.Equal(t, tc.name, name)
		})
	}
}

func TestResolveEvent(t *testing.T) {
	cases := []struct {
		name string
		msg  *models.Message
		kind eventKind
		ok   bool
	}{
		{name: "start", msg: &models.Message{Text: "/start"}, kind: eventStart, ok: true},
		{name: "login", msg: &models.Message{Text: "/login"}, kind: eventLogin, ok: true},
		{name: "checkin alias", msg: &models.Message{Text: "/checkin"}, kind: eventLogin, ok: true},
		{name: "score", msg: &models.Message{Text: "/score"}, kind: eventScore, ok: true},
		{name: "leaderboard", msg: &models.Message{Text: "/leaderboard"}, kind: eventLeaderboard, ok: true},
		{name: "text", msg: &models.Message{Text: "hello there"}, kind: eventText, ok: true},
		{name: "unknown command", msg: &models.Message{Text: "/help"}, ok: false},
		{name: "empty text", msg: &models.Message{}, ok: false},
		{name: "nil", msg: nil, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, ok := resolveEvent(tc.msg)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.kind, event.kind)
		})
	}
}

func TestHandleStartWelcomesByName(t *testing.T) {
	scorer := &stubScorer{}
	router, sender, hook := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(10, 20, "Ada", "/start"))

	assert.Equal(t, []int64{10}, scorer.onboarded)
	reply := sender.last(t)
	assert.Equal(t, int64(20), reply.ChatID)
	assert.Equal(t, "Hello Ada, welcome to the Retrodrop Bot!", reply.Text)

	var sawUpdate bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "telegram_update" && entry.Data["command"] == "start" {
			sawUpdate = true
		}
	}
	assert.True(t, sawUpdate, "expected telegram_update log entry for /start")
}

func TestHandleCheckinReplies(t *testing.T) {
	cases := []struct {
		outcome scoring.Outcome
		reply   string
	}{
		{outcome: scoring.OutcomeGranted, reply: "You have successfully logged in and earned 5 points!"},
		{outcome: scoring.OutcomeAlreadyCheckedIn, reply: "You have already logged in today."},
		{outcome: scoring.OutcomeMustOnboard, reply: "Please start the bot with /start."},
	}

	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			scorer := &stubScorer{checkinOutcome: tc.outcome}
			router, sender, _ := newTestRouter(scorer, 0)

			router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/login"))

			assert.Equal(t, []int64{1}, scorer.checkins)
			assert.Equal(t, tc.reply, sender.last(t).Text)
		})
	}
}

func TestHandleCheckinStoreFailure(t *testing.T) {
	scorer := &stubScorer{checkinErr: errors.New("connection refused")}
	router, sender, hook := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/checkin"))

	assert.Equal(t, "Something went wrong. Please try again later.", sender.last(t).Text)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "handler_failed", entry.Data["event"])
	assert.Equal(t, "command:login", entry.Data["command"])
	assert.Equal(t, int64(1), entry.Data["user_id"])
}

func TestHandleScore(t *testing.T) {
	scorer := &stubScorer{score: 42}
	router, sender, _ := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/score"))
	assert.Equal(t, "Your current score is: 42", sender.last(t).Text)

	scorer.scoreErr = domain.ErrUnknownUser
	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/score"))
	assert.Equal(t, "Please start the bot with /start.", sender.last(t).Text)

	scorer.scoreErr = errors.New("i/o timeout")
	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/score"))
	assert.Equal(t, "Something went wrong. Please try again later.", sender.last(t).Text)
}

func TestHandleLeaderboard(t *testing.T) {
	scorer := &stubScorer{leaders: []domain.Account{
		{UserID: 7, Score: 12},
		{UserID: 3, Score: 9},
	}}
	router, sender, _ := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/leaderboard"))

	reply := sender.last(t)
	assert.Equal(t, scoring.DefaultLeaderboardSize, scorer.limit)
	assert.Equal(t, int64(2), reply.ChatID)
	assert.Equal(t, models.ParseModeMarkdownV1, reply.ParseMode)
	assert.Equal(t, "🏆 *Leaderboard:*\n\n1. User 7 - 12 points\n2. User 3 - 9 points", reply.Text)
}

func TestHandleLeaderboardUsesTargetChat(t *testing.T) {
	scorer := &stubScorer{leaders: []domain.Account{{UserID: 1, Score: 1}}}
	router, sender, _ := newTestRouter(scorer, -1001)

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/leaderboard"))

	assert.Equal(t, int64(-1001), sender.last(t).ChatID)
}

func TestHandleLeaderboardFailures(t *testing.T) {
	scorer := &stubScorer{}
	router, sender, _ := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/leaderboard"))
	assert.Equal(t, "No one is on the leaderboard yet.", sender.last(t).Text)

	scorer.leaderErr = errors.New("too many connections")
	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/leaderboard"))
	assert.Equal(t, "There was an error fetching the leaderboard.", sender.last(t).Text)
}

func TestHandleTextReplies(t *testing.T) {
	cases := []struct {
		name    string
		outcome scoring.Outcome
		reply   string
	}{
		{name: "penalized", outcome: scoring.OutcomePenalized, reply: "Please avoid spammy messages. You've been penalized 1 point."},
		{name: "rewarded", outcome: scoring.OutcomeRewarded, reply: "Great message! You've earned 1 point."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scorer := &stubScorer{messageOutcome: tc.outcome}
			router, sender, _ := newTestRouter(scorer, 0)

			router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "GM"))

			assert.Equal(t, []string{"GM"}, scorer.messages, "raw text is handed to the scorer")
			assert.Equal(t, tc.reply, sender.last(t).Text)
		})
	}
}

func TestHandleTextWithoutOutcomeStaysSilent(t *testing.T) {
	scorer := &stubScorer{}
	router, sender, _ := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "hi"))

	assert.Equal(t, []string{"hi"}, scorer.messages)
	assert.Zero(t, sender.count())
}

func TestHandleIgnoresUnknownCommandsAndEmptyUpdates(t *testing.T) {
	scorer := &stubScorer{}
	router, sender, _ := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, nil)
	router.Handle(context.Background(), nil, &models.Update{})
	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/help me please"))

	assert.Empty(t, scorer.messages)
	assert.Zero(t, sender.count())
}

func TestHandleUnidentifiedSender(t *testing.T) {
	scorer := &stubScorer{}
	router, sender, _ := newTestRouter(scorer, 0)

	router.Handle(context.Background(), nil, messageUpdate(0, 55, "", "/login"))

	assert.Empty(t, scorer.checkins)
	reply := sender.last(t)
	assert.Equal(t, int64(55), reply.ChatID)
	assert.Equal(t, "Unable to identify you. Please start the bot with /start.", reply.Text)
}

func TestHandleUnidentifiedSenderUsesTargetChat(t *testing.T) {
	router, sender, _ := newTestRouter(&stubScorer{}, -1002)

	router.Handle(context.Background(), nil, messageUpdate(0, 55, "", "a long message from nobody"))

	assert.Equal(t, int64(-1002), sender.last(t).ChatID)
}

func TestSendFailureIsLogged(t *testing.T) {
	scorer := &stubScorer{score: 1}
	router, sender, hook := newTestRouter(scorer, 0)
	sender.err = errors.New("Forbidden: bot was blocked by the user")

	router.Handle(context.Background(), nil, messageUpdate(1, 2, "Bo", "/score"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "telegram_send_failed", entry.Data["event"])
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "Ada", displayName(&models.User{FirstName: "Ada", Username: "ada_l"}))
	assert.Equal(t, "ada_l", displayName(&models.User{Username: "ada_l"}))
	assert.Equal(t, "there", displayName(&models.User{}))
	assert.Equal(t, "", displayName(nil))
}
