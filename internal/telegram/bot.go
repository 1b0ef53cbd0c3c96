// Package telegram adapts the Telegram Bot API to messaging.Endpoint.
package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"embedbot/internal/consts"
	"embedbot/internal/models"
)

// MessageHandler receives every text message the bot sees.
type MessageHandler func(ctx context.Context, msg models.InboundMessage)

// Bot wraps the Telegram bot and implements messaging.Endpoint.
type Bot struct {
	bot    *tgbot.Bot
	logger zerolog.Logger

	mu      sync.RWMutex
	handler MessageHandler
}

// NewBot creates the bot. apiURL overrides the Bot API server when set.
func NewBot(token, apiURL string, logger zerolog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	b := &Bot{logger: logger}
	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(b.defaultHandler),
		tgbot.WithErrorsHandler(func(err error) {
			logger.Warn().Err(err).Msg("telegram polling error")
		}),
	}
	if apiURL != "" {
		opts = append(opts, tgbot.WithServerURL(apiURL))
	}

	bot, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.bot = bot

	logger.Info().Msg("Telegram bot created successfully")
	return b, nil
}

// OnMessage sets the handler for inbound text messages.
func (b *Bot) OnMessage(h MessageHandler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info().Msg("Starting Telegram bot...")
	b.bot.Start(ctx)
	b.logger.Info().Msg("Telegram bot stopped")
	return nil
}

// RegisterCommands publishes the command menu.
func (b *Bot) RegisterCommands(ctx context.Context) error {
	_, err := b.bot.SetMyCommands(ctx, &tgbot.SetMyCommandsParams{
		Commands: botCommands(consts.AllCommands),
	})
	if err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

func (b *Bot) defaultHandler(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
	msg, ok := toInbound(update)
	if !ok {
		return
	}
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		b.logger.Warn().Msg("message received before a handler was set")
		return
	}
	h(ctx, msg)
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := b.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) ReplyTo(ctx context.Context, chatID int64, messageID int, text string) (models.StatusHandle, error) {
	msg, err := b.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:          chatID,
		Text:            text,
		ParseMode:       tgmodels.ParseModeHTML,
		ReplyParameters: replyTo(messageID),
	})
	if err != nil {
		return models.StatusHandle{}, fmt.Errorf("failed to reply: %w", err)
	}
	return models.StatusHandle{ChatID: chatID, MessageID: msg.ID}, nil
}

func (b *Bot) EditMessage(ctx context.Context, h models.StatusHandle, text string) error {
	_, err := b.bot.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    h.ChatID,
		MessageID: h.MessageID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (b *Bot) DeleteMessage(ctx context.Context, h models.StatusHandle) error {
	_, err := b.bot.DeleteMessage(ctx, &tgbot.DeleteMessageParams{
		ChatID:    h.ChatID,
		MessageID: h.MessageID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SendVideo streams the file at v.Path to the chat.
func (b *Bot) SendVideo(ctx context.Context, v models.VideoUpload) error {
	f, err := os.Open(v.Path)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	params := videoParams(v)
	params.Video = &tgmodels.InputFileUpload{Filename: v.Filename, Data: f}
	if _, err := b.bot.SendVideo(ctx, params); err != nil {
		return fmt.Errorf("failed to send video: %w", err)
	}
	return nil
}

// videoParams fills everything except the file itself.
func videoParams(v models.VideoUpload) *tgbot.SendVideoParams {
	return &tgbot.SendVideoParams{
		ChatID:            v.ChatID,
		Duration:          v.Duration,
		Width:             v.Width,
		Height:            v.Height,
		SupportsStreaming: v.SupportsStreaming,
		ReplyParameters:   replyTo(v.ReplyToMessageID),
	}
}

func replyTo(messageID int) *tgmodels.ReplyParameters {
	if messageID == 0 {
		return nil
	}
	return &tgmodels.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true}
}

func toInbound(update *tgmodels.Update) (models.InboundMessage, bool) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return models.InboundMessage{}, false
	}
	return models.InboundMessage{
		ChatID:    update.Message.Chat.ID,
		MessageID: update.Message.ID,
		Text:      update.Message.Text,
	}, true
}

func botCommands(cmds []consts.Command) []tgmodels.BotCommand {
	out := make([]tgmodels.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, tgmodels.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// The Bot API rejects an edit that would not change the message.
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
