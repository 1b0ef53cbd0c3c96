package models

import "time"

type State string

const (
	StateStarting  State = "starting"
	StateResolving State = "resolving"
	StateFetching  State = "fetching"
	StateProbing   State = "probing"
	StateUploading State = "uploading"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// InboundMessage is the part of a chat message the dispatcher looks at.
type InboundMessage struct {
	ChatID    int64
	MessageID int
	Text      string
}

// ConversionRequest is created once per matched link and owned by a single
// pipeline run. Token names the temporary artifact.
type ConversionRequest struct {
	URL       string
	ChatID    int64
	MessageID int
	Token     string
}

// StatusHandle points at the one chat message a pipeline edits while it runs.
type StatusHandle struct {
	ChatID    int64
	MessageID int
}

type MediaProperties struct {
	Duration int
	Width    int
	Height   int
}

type VideoUpload struct {
	ChatID            int64
	ReplyToMessageID  int
	Path              string
	Filename          string
	Duration          int
	Width             int
	Height            int
	SupportsStreaming bool
}

// RequestRecord is a snapshot of an in-flight pipeline kept by the tracker.
type RequestRecord struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ChatID    int64     `json:"chat_id"`
	MessageID int       `json:"message_id"`
	State     State     `json:"state"`
	Percent   float64   `json:"percent"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
