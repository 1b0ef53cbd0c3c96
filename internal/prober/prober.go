package prober

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"embedbot/internal/models"
)

type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

type Prober struct {
	tool    string
	command CommandFunc
}

func New(tool string) *Prober {
	return &Prober{tool: tool, command: exec.CommandContext}
}

func (p *Prober) WithCommand(fn CommandFunc) *Prober {
	p.command = fn
	return p
}

func (p *Prober) Tool() string { return p.tool }

// Probe reads duration and frame size of the first video stream in path.
// Any failure, including output the tool is not supposed to produce, is a
// *models.ProbeError.
func (p *Prober) Probe(ctx context.Context, path string) (models.MediaProperties, error) {
	durOut, err := p.run(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return models.MediaProperties{}, &models.ProbeError{Path: path, Err: err}
	}
	duration, err := ParseDuration(durOut)
	if err != nil {
		return models.MediaProperties{}, &models.ProbeError{Path: path, Err: err}
	}

	sizeOut, err := p.run(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path)
	if err != nil {
		return models.MediaProperties{}, &models.ProbeError{Path: path, Err: err}
	}
	width, height, err := ParseSize(sizeOut)
	if err != nil {
		return models.MediaProperties{}, &models.ProbeError{Path: path, Err: err}
	}

	return models.MediaProperties{Duration: duration, Width: width, Height: height}, nil
}

func (p *Prober) run(ctx context.Context, args ...string) (string, error) {
	cmd := p.command(ctx, p.tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", p.tool, err, msg)
		}
		return "", fmt.Errorf("%s: %w", p.tool, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ParseDuration turns decimal seconds into whole seconds, rounding halves to even.
func ParseDuration(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return int(math.RoundToEven(f)), nil
}

// ParseSize reads "WIDTHxHEIGHT" from the first line of s.
func ParseSize(s string) (width, height int, err error) {
	line := strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	parts := strings.Split(line, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parse size %q: want WIDTHxHEIGHT", line)
	}
	if width, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("parse width %q: %w", parts[0], err)
	}
	if height, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("parse height %q: %w", parts[1], err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, errors.New("frame size must be positive")
	}
	return width, height, nil
}

// Version returns the first line of the tool's -version banner.
func (p *Prober) Version(ctx context.Context) (string, error) {
	out, err := p.command(ctx, p.tool, "-version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0]), nil
}
