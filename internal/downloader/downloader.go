package downloader

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"embedbot/internal/models"
	"embedbot/internal/util"
)

// Example progress line:
// [download]  12.3% of 3.21MiB at 123.4KiB/s ETA 00:12
// Capture the leading percent after the [download] tag (decimals allowed)
var downloadPctRe = regexp.MustCompile(`^\[download\]\s+(\d{1,3}(?:\.\d+)?)%`)

const stderrTail = 4 << 10

type EventFunc func(models.ProgressEvent)

// CommandFunc builds the subprocess. exec.CommandContext in production.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

type Config struct {
	Tool          string
	MaxConcurrent int // 0 = no limit
}

type Downloader struct {
	cfg     Config
	sem     chan struct{}
	command CommandFunc
	logger  zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Downloader {
	d := &Downloader{cfg: cfg, command: exec.CommandContext, logger: logger}
	if cfg.MaxConcurrent > 0 {
		d.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return d
}

// WithCommand replaces the subprocess constructor.
func (d *Downloader) WithCommand(fn CommandFunc) *Downloader {
	d.command = fn
	return d
}

func (d *Downloader) Tool() string { return d.cfg.Tool }

func (d *Downloader) withPermit(ctx context.Context, fn func() error) error {
	if d.sem == nil {
		return fn()
	}
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.sem }()
	return fn()
}

// Fetch runs the fetch tool to write manifestURL into dest. Every progress
// line becomes a StageFetching event; the last event is always StageDone or
// StageFailed. On failure dest is removed and a *models.ConversionError is
// returned.
func (d *Downloader) Fetch(ctx context.Context, manifestURL, dest string, onEvent EventFunc) error {
	if onEvent == nil {
		onEvent = func(models.ProgressEvent) {}
	}
	err := d.withPermit(ctx, func() error {
		return d.fetch(ctx, manifestURL, dest, onEvent)
	})
	if err != nil {
		var ce *models.ConversionError
		if !errors.As(err, &ce) {
			// permit wait was cancelled before the tool started
			err = d.fail(dest, onEvent, &models.ConversionError{Tool: d.cfg.Tool, Err: err})
		}
		return err
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, manifestURL, dest string, onEvent EventFunc) error {
	args := []string{"--newline", "--output", dest, manifestURL}
	cmd := d.command(ctx, d.cfg.Tool, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return d.fail(dest, onEvent, &models.ConversionError{Tool: d.cfg.Tool, Err: err})
	}
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return d.fail(dest, onEvent, &models.ConversionError{Tool: d.cfg.Tool, Err: err})
	}

	readProgress(stdout, func(pct float64) {
		onEvent(models.Fetching(pct))
	})

	if err := cmd.Wait(); err != nil {
		ce := &models.ConversionError{Tool: d.cfg.Tool, Stderr: stderr.String()}
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() > 0 {
			ce.ExitCode = ee.ExitCode()
		} else {
			ce.Err = err
		}
		return d.fail(dest, onEvent, ce)
	}

	onEvent(models.Done())
	return nil
}

func (d *Downloader) fail(dest string, onEvent EventFunc, ce *models.ConversionError) error {
	if err := util.RemoveArtifact(dest); err != nil {
		d.logger.Warn().Err(err).Str("path", dest).Msg("failed to remove partial download")
	}
	d.logger.Warn().Err(ce).Str("path", dest).Msg("fetch failed")
	onEvent(models.Failed(ce))
	return ce
}

// Version asks the tool for its version string.
func (d *Downloader) Version(ctx context.Context) (string, error) {
	out, err := d.command(ctx, d.cfg.Tool, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func readProgress(r io.Reader, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		m := downloadPctRe.FindStringSubmatch(scanner.Text())
		if len(m) == 0 {
			continue
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if f < 0 {
			f = 0
		}
		if f > 100 {
			f = 100
		}
		onProgress(f)
	}
	// keep the pipe drained so the tool never blocks on a full buffer
	_, _ = io.Copy(io.Discard, r)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(string(t.buf)) }
