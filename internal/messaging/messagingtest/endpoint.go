// Package messagingtest provides an in-memory messaging.Endpoint for tests.
package messagingtest

import (
	"context"
	"sync"

	"embedbot/internal/models"
)

type CallKind string

const (
	CallSend   CallKind = "send"
	CallReply  CallKind = "reply"
	CallEdit   CallKind = "edit"
	CallDelete CallKind = "delete"
	CallVideo  CallKind = "video"
)

type Call struct {
	Kind      CallKind
	ChatID    int64
	MessageID int // replied-to, edited or deleted message
	Text      string
	Video     models.VideoUpload
}

// Endpoint records every call. Err* fields inject failures per call kind.
type Endpoint struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	ErrReply  error
	ErrEdit   error
	ErrDelete error
	ErrVideo  error
	ErrSend   error

	// OnVideo runs inside SendVideo, e.g. to inspect the file before cleanup.
	OnVideo func(models.VideoUpload)

	// HonorContext makes edits fail with ctx.Err() once ctx is done, the
	// way a real HTTP call would. Rejected edits are not recorded.
	HonorContext bool
}

func New() *Endpoint { return &Endpoint{nextID: 1000} }

func (e *Endpoint) record(c Call) {
	e.mu.Lock()
	e.calls = append(e.calls, c)
	e.mu.Unlock()
}

func (e *Endpoint) SendMessage(_ context.Context, chatID int64, text string) error {
	e.record(Call{Kind: CallSend, ChatID: chatID, Text: text})
	return e.ErrSend
}

func (e *Endpoint) ReplyTo(_ context.Context, chatID int64, messageID int, text string) (models.StatusHandle, error) {
	e.record(Call{Kind: CallReply, ChatID: chatID, MessageID: messageID, Text: text})
	if e.ErrReply != nil {
		return models.StatusHandle{}, e.ErrReply
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()
	return models.StatusHandle{ChatID: chatID, MessageID: id}, nil
}

func (e *Endpoint) EditMessage(ctx context.Context, h models.StatusHandle, text string) error {
	if e.HonorContext && ctx.Err() != nil {
		return ctx.Err()
	}
	e.record(Call{Kind: CallEdit, ChatID: h.ChatID, MessageID: h.MessageID, Text: text})
	return e.ErrEdit
}

func (e *Endpoint) DeleteMessage(_ context.Context, h models.StatusHandle) error {
	e.record(Call{Kind: CallDelete, ChatID: h.ChatID, MessageID: h.MessageID})
	return e.ErrDelete
}

func (e *Endpoint) SendVideo(_ context.Context, v models.VideoUpload) error {
	e.record(Call{Kind: CallVideo, ChatID: v.ChatID, MessageID: v.ReplyToMessageID, Video: v})
	if e.OnVideo != nil {
		e.OnVideo(v)
	}
	return e.ErrVideo
}

// Calls returns a copy of everything recorded so far.
func (e *Endpoint) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// Filter returns recorded calls of the given kind, in order.
func (e *Endpoint) Filter(kind CallKind) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the text of each recorded call of the given kind.
func (e *Endpoint) Texts(kind CallKind) []string {
	var out []string
	for _, c := range e.Filter(kind) {
		out = append(out, c.Text)
	}
	return out
}
