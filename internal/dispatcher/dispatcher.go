// Package dispatcher matches chat messages and starts pipelines for links.
package dispatcher

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"embedbot/internal/consts"
	"embedbot/internal/messaging"
	"embedbot/internal/models"
	"embedbot/internal/queue"
	"embedbot/internal/util"
)

var (
	embedLinkRe  = regexp.MustCompile(`https://(www\.)?reddit\.com/mediaembed\S*`)
	streamLinkRe = regexp.MustCompile(`https://v\.redd\.it/\S*`)
	goodBotRe    = regexp.MustCompile(`(?i)good bot`)
)

type Match int

const (
	MatchNone Match = iota
	MatchCommand
	MatchEmbedLink
	MatchStreamLink
	MatchFeedback
)

func (m Match) String() string {
	switch m {
	case MatchCommand:
		return "command"
	case MatchEmbedLink:
		return "embed_link"
	case MatchStreamLink:
		return "stream_link"
	case MatchFeedback:
		return "feedback"
	default:
		return "none"
	}
}

// Runner executes one conversion request. *pipeline.Pipeline in production.
type Runner interface {
	Run(ctx context.Context, req models.ConversionRequest) error
}

type Dispatcher struct {
	endpoint messaging.Endpoint
	runner   Runner
	spawner  queue.Spawner
	newToken util.TokenSource
	logger   zerolog.Logger
}

func New(endpoint messaging.Endpoint, runner Runner, spawner queue.Spawner, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		endpoint: endpoint,
		runner:   runner,
		spawner:  spawner,
		newToken: util.RandomToken,
		logger:   logger,
	}
}

// WithTokenSource replaces the request token generator.
func (d *Dispatcher) WithTokenSource(src util.TokenSource) *Dispatcher {
	d.newToken = src
	return d
}

// Dispatch handles one inbound message. Link matches are handed to the
// spawner; Dispatch never waits for a pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.InboundMessage) Match {
	if cmd, ok := parseCommand(msg.Text); ok {
		switch cmd {
		case consts.CommandStart.Name, consts.CommandHelp.Name:
			d.send(ctx, msg.ChatID, consts.MessageStart)
			d.send(ctx, msg.ChatID, consts.MessageHelp)
			return MatchCommand
		}
	}

	if link := embedLinkRe.FindString(msg.Text); link != "" {
		d.spawn(msg, link)
		return MatchEmbedLink
	}
	if link := streamLinkRe.FindString(msg.Text); link != "" {
		d.spawn(msg, link)
		return MatchStreamLink
	}
	if goodBotRe.MatchString(msg.Text) {
		if _, err := d.endpoint.ReplyTo(ctx, msg.ChatID, msg.MessageID, consts.MessageThanks); err != nil {
			d.logger.Debug().Err(err).Int64("chat_id", msg.ChatID).Msg("failed to send thanks")
		}
		return MatchFeedback
	}
	return MatchNone
}

func (d *Dispatcher) spawn(msg models.InboundMessage, link string) {
	req := models.ConversionRequest{
		URL:       link,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Token:     d.newToken(),
	}
	d.logger.Info().
		Str("token", req.Token).
		Str("url", req.URL).
		Int64("chat_id", req.ChatID).
		Msg("conversion requested")

	err := d.spawner.Go(req.Token, func(ctx context.Context) {
		_ = d.runner.Run(ctx, req)
	})
	if err != nil {
		d.logger.Error().Err(err).Str("token", req.Token).Msg("failed to schedule conversion")
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	if err := d.endpoint.SendMessage(ctx, chatID, text); err != nil {
		d.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

// parseCommand extracts "start" from "/start", "/start@SomeBot" or
// "/start arg".
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	return strings.ToLower(name), name != ""
}
