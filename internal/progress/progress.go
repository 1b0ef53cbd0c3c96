// Package progress turns pipeline stages into edits of the status message.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"embedbot/internal/messaging"
	"embedbot/internal/models"
)

// ErrThrottled is returned by Status.Progress when an edit was dropped
// because the previous one was too recent.
var ErrThrottled = errors.New("progress update throttled")

type Reporter struct {
	endpoint    messaging.Endpoint
	minInterval time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// New creates a Reporter. minInterval throttles Status.Progress; zero
// delivers every distinct update.
func New(endpoint messaging.Endpoint, minInterval time.Duration, logger zerolog.Logger) *Reporter {
	return &Reporter{
		endpoint:    endpoint,
		minInterval: minInterval,
		now:         time.Now,
		logger:      logger,
	}
}

// Track returns the per-request state for one status message. A Status must
// only be used by the pipeline that owns the handle.
func (r *Reporter) Track(h models.StatusHandle) *Status {
	return &Status{r: r, handle: h}
}

type Status struct {
	r        *Reporter
	handle   models.StatusHandle
	last     string
	lastSent time.Time
}

func (s *Status) Handle() models.StatusHandle { return s.handle }

// Set edits the status message to text unless it already shows it.
// The returned error is informational: a failed edit never stops a pipeline.
func (s *Status) Set(ctx context.Context, text string) error {
	return s.edit(ctx, text)
}

// Progress is Set with throttling for high-frequency updates.
func (s *Status) Progress(ctx context.Context, text string) error {
	if s.r.minInterval > 0 && !s.lastSent.IsZero() && s.r.now().Sub(s.lastSent) < s.r.minInterval {
		return ErrThrottled
	}
	return s.edit(ctx, text)
}

func (s *Status) edit(ctx context.Context, text string) error {
	if text == s.last {
		return nil
	}
	if err := s.r.endpoint.EditMessage(ctx, s.handle, text); err != nil {
		s.r.logger.Debug().
			Err(err).
			Int64("chat_id", s.handle.ChatID).
			Int("message_id", s.handle.MessageID).
			Msg("status update failed")
		return fmt.Errorf("edit status message: %w", err)
	}
	s.last = text
	s.lastSent = s.r.now()
	return nil
}
