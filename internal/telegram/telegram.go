// Package telegram hosts the Telegram client, update routing, and reply
// formatting.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"retrodrop_bot/internal/config"
	"retrodrop_bot/internal/logging"
)

type botRunner interface {
	Start(ctx context.Context)
}

type botClient interface {
	botRunner
	messageSender
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
	}

	createBot = func(token string, options ...bot.Option) (botClient, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and the router feeding it.
type Client struct {
	bot    botRunner
	router *Router
	logger *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling and routes every
// message update to scorer.
func NewClient(cfg config.Config, logger *logrus.Entry, scorer Scorer) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	router := NewRouter(scorer, nil, logger, cfg.TargetChatID)

	tgBot, err := createBot(cfg.BotToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(router.Handle),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	// Updates only flow once Start is called, so the sender is in place first.
	router.sender = tgBot

	return &Client{
		bot:    tgBot,
		router: router,
		logger: logger,
	}, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
