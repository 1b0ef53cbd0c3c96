package prober

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embedbot/internal/models"
)

func helperCommand(script string) CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", script, name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	script := args[0]
	joined := strings.Join(args[2:], " ")
	wantsDuration := strings.Contains(joined, "format=duration")

	switch script {
	case "ok":
		if wantsDuration {
			fmt.Println("12.4")
		} else {
			fmt.Println("640x360")
			fmt.Println("")
		}
	case "bad-size":
		if wantsDuration {
			fmt.Println("3.0")
		} else {
			fmt.Println("N/A")
		}
	case "exit":
		fmt.Fprintln(os.Stderr, "moov atom not found")
		os.Exit(1)
	case "version":
		fmt.Println("ffprobe version 6.1.1 Copyright (c) 2007-2023")
		fmt.Println("built with gcc")
	}
	os.Exit(0)
}

func TestProbe(t *testing.T) {
	p := New("ffprobe").WithCommand(helperCommand("ok"))

	props, err := p.Probe(context.Background(), "/tmp/X.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.MediaProperties{Duration: 12, Width: 640, Height: 360}, props)
}

func TestProbe_MalformedOutput(t *testing.T) {
	p := New("ffprobe").WithCommand(helperCommand("bad-size"))

	_, err := p.Probe(context.Background(), "/tmp/X.mp4")
	var pe *models.ProbeError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "/tmp/X.mp4", pe.Path)
}

func TestProbe_ToolFails(t *testing.T) {
	p := New("ffprobe").WithCommand(helperCommand("exit"))

	_, err := p.Probe(context.Background(), "/tmp/X.mp4")
	var pe *models.ProbeError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Contains(t, err.Error(), "moov atom not found")
}

func TestProbe_MissingTool(t *testing.T) {
	_, err := New("embedbot-no-such-probe").Probe(context.Background(), "/tmp/X.mp4")
	var pe *models.ProbeError
	require.True(t, errors.As(err, &pe), "got %v", err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "12.4", want: 12},
		{in: "12.6\n", want: 13},
		{in: "12.5", want: 12},
		{in: "13.5", want: 14},
		{in: "0.000000", want: 0},
		{in: "N/A", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSize(t *testing.T) {
	w, h, err := ParseSize("1280x720\n1280x720")
	require.NoError(t, err)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	for _, bad := range []string{"", "1280", "1280x", "ax720", "1x2x3", "0x720"} {
		_, _, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestVersion(t *testing.T) {
	v, err := New("ffprobe").WithCommand(helperCommand("version")).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffprobe version 6.1.1 Copyright (c) 2007-2023", v)
}
