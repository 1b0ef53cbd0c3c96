// Package pipeline runs one conversion request from link to uploaded video.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"embedbot/internal/consts"
	"embedbot/internal/downloader"
	"embedbot/internal/messaging"
	"embedbot/internal/metrics"
	"embedbot/internal/models"
	"embedbot/internal/progress"
	"embedbot/internal/store"
	"embedbot/internal/util"
)

type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, manifestURL, dest string, onEvent downloader.EventFunc) error
	Tool() string
}

type Prober interface {
	Probe(ctx context.Context, path string) (models.MediaProperties, error)
}

// Params are the pipeline's collaborators. Tracker and Metrics may be nil.
type Params struct {
	Endpoint messaging.Endpoint
	Resolver Resolver
	Fetcher  Fetcher
	Prober   Prober
	Reporter *progress.Reporter
	Tracker  store.RequestStore
	Metrics  *metrics.Registry
	TempDir  string
	Timeout  time.Duration
	// NewToken names the uploaded file. util.RandomToken when nil.
	NewToken util.TokenSource
	Logger   zerolog.Logger
}

type Pipeline struct {
	p Params
}

func New(p Params) *Pipeline {
	if p.NewToken == nil {
		p.NewToken = util.RandomToken
	}
	if p.Metrics == nil {
		p.Metrics = metrics.NewRegistry()
	}
	return &Pipeline{p: p}
}

// ArtifactPath is where the request's video is written.
func (pl *Pipeline) ArtifactPath(req models.ConversionRequest) string {
	return filepath.Join(pl.p.TempDir, req.Token+".mp4")
}

// Run drives req through starting, resolving, fetching, probing and
// uploading. Every failure is reported to the chat and returned; the
// artifact is gone when Run returns.
func (pl *Pipeline) Run(ctx context.Context, req models.ConversionRequest) (err error) {
	if pl.p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pl.p.Timeout)
		defer cancel()
	}

	log := pl.p.Logger.With().
		Str("token", req.Token).
		Str("url", req.URL).
		Int64("chat_id", req.ChatID).
		Logger()

	path := pl.ArtifactPath(req)
	started := time.Now()
	pl.p.Metrics.Started.Add(1)
	pl.p.Metrics.ActiveJobs.Add(1)
	defer func() {
		pl.p.Metrics.ActiveJobs.Add(-1)
		pl.p.Metrics.ObserveDuration(time.Since(started))
		if err != nil {
			pl.p.Metrics.FailedJobs.Add(1)
		} else {
			pl.p.Metrics.CompletedJobs.Add(1)
		}
		if rmErr := util.RemoveArtifact(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove artifact")
		}
	}()

	// Starting
	handle, err := pl.p.Endpoint.ReplyTo(ctx, req.ChatID, req.MessageID, consts.MessageStarting)
	if err != nil {
		log.Error().Err(err).Msg("failed to reply to request")
		return err
	}
	status := pl.p.Reporter.Track(handle)
	rec := pl.track(ctx, req, log)
	defer pl.untrack(req.Token, log)

	fail := func(stage models.State, cause error, text string) error {
		// artifact first, then the report
		if rmErr := util.RemoveArtifact(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove artifact")
		}
		// the request context may be done by now; the user still gets the error
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if editErr := status.Set(rctx, text); editErr != nil {
			pl.p.Metrics.EditFailures.Add(1)
		}
		rec.Error = cause.Error()
		pl.advance(rctx, rec, models.StateFailed, log)
		log.Warn().Err(cause).Str("stage", string(stage)).Msg("conversion failed")
		return cause
	}

	// Resolving
	pl.advance(ctx, rec, models.StateResolving, log)
	manifestURL, err := pl.p.Resolver.Resolve(ctx, req.URL)
	if err != nil {
		pl.p.Metrics.ResolveFailures.Add(1)
		text := consts.ErrorDownloading
		var se *models.UpstreamStatusError
		if errors.As(err, &se) {
			text = consts.ErrorWrongCode(se.Code)
		}
		return fail(models.StateResolving, err, text)
	}

	// Fetching
	pl.advance(ctx, rec, models.StateFetching, log)
	pl.report(ctx, status, consts.MessageConverting("0%"))
	err = pl.p.Fetcher.Fetch(ctx, manifestURL, path, func(ev models.ProgressEvent) {
		if ev.Stage != models.StageFetching {
			return
		}
		perr := status.Progress(ctx, consts.MessageConverting(ev.PercentText()))
		if errors.Is(perr, progress.ErrThrottled) {
			return
		}
		if perr != nil {
			pl.p.Metrics.EditFailures.Add(1)
		}
		if ev.Percent == rec.Percent {
			return
		}
		rec.Percent = ev.Percent
		pl.update(ctx, rec, log)
	})
	if err != nil {
		pl.p.Metrics.FetchFailures.Add(1)
		return fail(models.StateFetching, err, consts.ErrorConverting(pl.p.Fetcher.Tool()))
	}

	// Probing
	pl.advance(ctx, rec, models.StateProbing, log)
	props, err := pl.p.Prober.Probe(ctx, path)
	if err != nil {
		pl.p.Metrics.ProbeFailures.Add(1)
		return fail(models.StateProbing, err, consts.ErrorConverting(pl.p.Fetcher.Tool()))
	}

	// Uploading
	pl.advance(ctx, rec, models.StateUploading, log)
	pl.report(ctx, status, consts.MessageUploading)
	err = pl.p.Endpoint.SendVideo(ctx, models.VideoUpload{
		ChatID:            req.ChatID,
		ReplyToMessageID:  req.MessageID,
		Path:              path,
		Filename:          pl.p.NewToken() + ".mp4",
		Duration:          props.Duration,
		Width:             props.Width,
		Height:            props.Height,
		SupportsStreaming: true,
	})
	if err != nil {
		pl.p.Metrics.UploadFailures.Add(1)
		return fail(models.StateUploading, &models.UploadError{Err: err}, consts.ErrorUploading)
	}

	// Done
	if delErr := pl.p.Endpoint.DeleteMessage(ctx, status.Handle()); delErr != nil {
		log.Debug().Err(delErr).Msg("failed to delete status message")
	}
	if rmErr := util.RemoveArtifact(path); rmErr != nil {
		log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove artifact")
	}
	pl.advance(ctx, rec, models.StateDone, log)
	log.Info().
		Int("duration", props.Duration).
		Int("width", props.Width).
		Int("height", props.Height).
		Dur("elapsed", time.Since(started)).
		Msg("video delivered")
	return nil
}

func (pl *Pipeline) report(ctx context.Context, status *progress.Status, text string) {
	if err := status.Set(ctx, text); err != nil {
		pl.p.Metrics.EditFailures.Add(1)
	}
}

func (pl *Pipeline) track(ctx context.Context, req models.ConversionRequest, log zerolog.Logger) *models.RequestRecord {
	rec := &models.RequestRecord{
		Token:     req.Token,
		URL:       req.URL,
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		State:     models.StateStarting,
	}
	if pl.p.Tracker == nil {
		return rec
	}
	if err := pl.p.Tracker.Put(ctx, rec); err != nil {
		log.Debug().Err(err).Msg("tracker put failed")
	}
	return rec
}

func (pl *Pipeline) advance(ctx context.Context, rec *models.RequestRecord, state models.State, log zerolog.Logger) {
	rec.State = state
	pl.update(ctx, rec, log)
}

func (pl *Pipeline) update(ctx context.Context, rec *models.RequestRecord, log zerolog.Logger) {
	if pl.p.Tracker == nil {
		return
	}
	if err := pl.p.Tracker.Update(ctx, rec); err != nil {
		log.Debug().Err(err).Msg("tracker update failed")
	}
}

func (pl *Pipeline) untrack(token string, log zerolog.Logger) {
	if pl.p.Tracker == nil {
		return
	}
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pl.p.Tracker.Delete(ctx, token); err != nil {
		log.Debug().Err(err).Msg("tracker delete failed")
	}
}
