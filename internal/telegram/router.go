package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"retrodrop_bot/internal/domain"
	"retrodrop_bot/internal/feature/scoring"
	"retrodrop_bot/internal/logging"
)

const (
	replyWelcome          = "Hello %s, welcome to the Retrodrop Bot!"
	replyCheckinGranted   = "You have successfully logged in and earned 5 points!"
	replyCheckinDone      = "You have already logged in today."
	replyMustOnboard      = "Please start the bot with /start."
	replyScore            = "Your current score is: %d"
	replyLeaderboardTitle = "🏆 *Leaderboard:*\n\n"
	replyLeaderboardLine  = "%d. User %d - %d points"
	replyLeaderboardEmpty = "No one is on the leaderboard yet."
	replyLeaderboardError = "There was an error fetching the leaderboard."
	replyPenalized        = "Please avoid spammy messages. You've been penalized 1 point."
	replyRewarded         = "Great message! You've earned 1 point."
	replyUnidentified     = "Unable to identify you. Please start the bot with /start."
	replyGenericError     = "Something went wrong. Please try again later."
)

type eventKind string

const (
	eventStart       eventKind = "command:start"
	eventLogin       eventKind = "command:login"
	eventScore       eventKind = "command:score"
	eventLeaderboard eventKind = "command:leaderboard"
	eventText        eventKind = "message:text"
)

var commandEvents = map[string]eventKind{
	"start":       eventStart,
	"login":       eventLogin,
	"checkin":     eventLogin,
	"score":       eventScore,
	"leaderboard": eventLeaderboard,
}

// Scorer is the scoring surface the router drives.
type Scorer interface {
	Onboard(ctx context.Context, userID int64) (domain.Account, error)
	CheckIn(ctx context.Context, userID int64) (scoring.Outcome, error)
	ScoreMessage(ctx context.Context, userID int64, text string) (scoring.Outcome, error)
	Score(ctx context.Context, userID int64) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Account, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Router turns inbound messages into scoring calls and replies. It holds no
// per-event state.
type Router struct {
	scorer       Scorer
	sender       messageSender
	logger       *logrus.Entry
	targetChatID int64
}

// NewRouter constructs a Router. targetChatID, when non-zero, receives the
// leaderboard and unidentified-sender notices instead of the originating chat.
func NewRouter(scorer Scorer, sender messageSender, logger *logrus.Entry, targetChatID int64) *Router {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Router{
		scorer:       scorer,
		sender:       sender,
		logger:       logger,
		targetChatID: targetChatID,
	}
}

type inboundEvent struct {
	kind        eventKind
	command     string
	chatID      int64
	sender      *models.User
	displayName string
	text        string
}

// Handle is the bot.HandlerFunc for every update.
func (r *Router) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	event, ok := resolveEvent(update.Message)
	if !ok {
		return
	}

	r.logger.WithFields(eventFields(event)).Debug("telegram update received")

	if event.sender == nil {
		r.reply(ctx, r.broadcastChat(event.chatID), replyUnidentified)
		return
	}

	userID := event.sender.ID
	switch event.kind {
	case eventStart:
		r.OnStart(ctx, event.chatID, userID, event.displayName)
	case eventLogin:
		r.OnCheckin(ctx, event.chatID, userID)
	case eventScore:
		r.OnScore(ctx, event.chatID, userID)
	case eventLeaderboard:
		r.OnLeaderboard(ctx, event.chatID, scoring.DefaultLeaderboardSize)
	case eventText:
		r.OnText(ctx, event.chatID, userID, event.text)
	}
}

// OnStart onboards the sender and welcomes them by name.
func (r *Router) OnStart(ctx context.Context, chatID, userID int64, displayName string) {
	if _, err := r.scorer.Onboard(ctx, userID); err != nil {
		r.logFailure(err, eventStart, chatID, userID)
		r.reply(ctx, chatID, replyGenericError)
		return
	}

	r.reply(ctx, chatID, fmt.Sprintf(replyWelcome, displayName))
}

// OnCheckin attempts the daily bonus.
func (r *Router) OnCheckin(ctx context.Context, chatID, userID int64) {
	outcome, err := r.scorer.CheckIn(ctx, userID)
	if err != nil {
		r.logFailure(err, eventLogin, chatID, userID)
		r.reply(ctx, chatID, replyGenericError)
		return
	}

	switch outcome {
	case scoring.OutcomeGranted:
		r.reply(ctx, chatID, replyCheckinGranted)
	case scoring.OutcomeAlreadyCheckedIn:
		r.reply(ctx, chatID, replyCheckinDone)
	case scoring.OutcomeMustOnboard:
		r.reply(ctx, chatID, replyMustOnboard)
	}
}

// OnScore reports the sender's current score.
func (r *Router) OnScore(ctx context.Context, chatID, userID int64) {
	score, err := r.scorer.Score(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUnknownUser):
		r.reply(ctx, chatID, replyMustOnboard)
	case err != nil:
		r.logFailure(err, eventScore, chatID, userID)
		r.reply(ctx, chatID, replyGenericError)
	default:
		r.reply(ctx, chatID, fmt.Sprintf(replyScore, score))
	}
}

// OnLeaderboard posts the top accounts.
func (r *Router) OnLeaderboard(ctx context.Context, chatID int64, limit int) {
	dest := r.broadcastChat(chatID)

	accounts, err := r.scorer.Leaderboard(ctx, limit)
	if err != nil {
		r.logFailure(err, eventLeaderboard, chatID, 0)
		r.reply(ctx, dest, replyLeaderboardError)
		return
	}
	if len(accounts) == 0 {
		r.reply(ctx, dest, replyLeaderboardEmpty)
		return
	}

	r.send(ctx, &bot.SendMessageParams{
		ChatID:    dest,
		Text:      formatLeaderboard(accounts),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

// OnText scores a free-text message and answers only when points moved.
func (r *Router) OnText(ctx context.Context, chatID, userID int64, text string) {
	outcome, err := r.scorer.ScoreMessage(ctx, userID, text)
	if err != nil {
		r.logFailure(err, eventText, chatID, userID)
		r.reply(ctx, chatID, replyGenericError)
		return
	}

	switch outcome {
	case scoring.OutcomePenalized:
		r.reply(ctx, chatID, replyPenalized)
	case scoring.OutcomeRewarded:
		r.reply(ctx, chatID, replyRewarded)
	}
}

func formatLeaderboard(accounts []domain.Account) string {
	lines := lo.Map(accounts, func(account domain.Account, i int) string {
		return fmt.Sprintf(replyLeaderboardLine, i+1, account.UserID, account.Score)
	})

	return replyLeaderboardTitle + strings.Join(lines, "\n")
}

func (r *Router) broadcastChat(chatID int64) int64 {
	if r.targetChatID != 0 {
		return r.targetChatID
	}

	return chatID
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	r.send(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
}

func (r *Router) send(ctx context.Context, params *bot.SendMessageParams) {
	if r.sender == nil {
		r.logger.WithField("event", "telegram_send_skipped").Warn("no telegram sender configured")
		return
	}

	if _, err := r.sender.SendMessage(ctx, params); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "telegram_send_failed",
			"chat_id": params.ChatID,
		}).WithError(err).Error("failed to send telegram reply")
	}
}

func (r *Router) logFailure(err error, kind eventKind, chatID, userID int64) {
	fields := logging.Context{
		UserID:  userID,
		ChatID:  chatID,
		Event:   "handler_failed",
		Command: string(kind),
	}.Fields()

	r.logger.WithFields(fields).WithError(err).Error("failed to handle telegram event")
}

func eventFields(event inboundEvent) logging.Fields {
	ctx := logging.Context{
		ChatID:  event.chatID,
		Event:   "telegram_update",
		Command: event.command,
	}
	if event.sender != nil {
		ctx.UserID = event.sender.ID
	}

	fields := ctx.Fields()
	fields["update_type"] = string(event.kind)
	return fields
}

// resolveEvent classifies a message. Empty messages and unknown commands are
// dropped.
func resolveEvent(msg *models.Message) (inboundEvent, bool) {
	if msg == nil || msg.Text == "" {
		return inboundEvent{}, false
	}

	event := inboundEvent{
		chatID:      msg.Chat.ID,
		sender:      msg.From,
		displayName: displayName(msg.From),
		text:        msg.Text,
	}

	name, isCommand := parseCommand(msg.Text)
	if !isCommand {
		event.kind = eventText
		return event, true
	}

	kind, known := commandEvents[name]
	if !known {
		return inboundEvent{}, false
	}

	event.kind = kind
	event.command = name
	return event, true
}

// parseCommand extracts the lower-cased command name from "/name@bot args".
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	return strings.ToLower(name), true
}

func displayName(user *models.User) string {
	if user == nil {
		return ""
	}
	if name := strings.TrimSpace(user.FirstName); name != "" {
		return name
	}
	if user.Username != "" {
		return user.Username
	}

	return "there"
}
