// Package messaging declares what the bot needs from the chat platform.
// Text arguments may carry the small HTML subset Telegram renders (<b>, <i>,
// <code>, <a>); implementations must send them with HTML parse mode.
package messaging

import (
	"context"

	"embedbot/internal/models"
)

type Endpoint interface {
	// SendMessage posts text to a chat.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// ReplyTo posts text as a reply to messageID and returns a handle to the new message.
	ReplyTo(ctx context.Context, chatID int64, messageID int, text string) (models.StatusHandle, error)

	// EditMessage replaces the text of a message previously sent by the bot.
	EditMessage(ctx context.Context, h models.StatusHandle, text string) error

	DeleteMessage(ctx context.Context, h models.StatusHandle) error

	// SendVideo uploads a local video file.
	SendVideo(ctx context.Context, v models.VideoUpload) error
}
