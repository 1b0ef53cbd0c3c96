// Package consts holds user facing texts and bot commands.
package consts

import (
	"fmt"
	"html"
)

const (
	MessageStart = "Hello! I am the Reddit mediaembed converter bot 📺\n\nJust send me one of those Reddit mediaembed links."
	MessageHelp  = "Send me a link (https://reddit.com/mediaembed/...)"

	MessageStarting  = "🚀 Starting..."
	MessageUploading = "☁️ Uploading to Telegram..."
	MessageThanks    = "🤩 Thank you!"

	ErrorDownloading = "⚠️ Unable to download file"
	ErrorUploading   = "⚠️ Unable to upload video to Telegram"
)

func MessageConverting(progress string) string {
	return "☕️ Converting... " + progress
}

func ErrorWrongCode(code int) string {
	return fmt.Sprintf("❗️ Resource returned HTTP %d code. Maybe link is broken", code)
}

func ErrorConverting(tool string) string {
	return fmt.Sprintf("⚠️ Sorry, <code>%s</code> seems unable to convert this file", html.EscapeString(tool))
}

type Command struct {
	Name        string
	Description string
}

var (
	CommandStart = Command{Name: "start", Description: "Start the bot"}
	CommandHelp  = Command{Name: "help", Description: "How to use the bot"}
)

// AllCommands is registered as the bot command menu.
var AllCommands = []Command{
	CommandStart,
	CommandHelp,
}
