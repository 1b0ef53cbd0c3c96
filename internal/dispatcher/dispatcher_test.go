package dispatcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embedbot/internal/consts"
	"embedbot/internal/downloader"
	"embedbot/internal/messaging/messagingtest"
	"embedbot/internal/models"
	"embedbot/internal/pipeline"
	"embedbot/internal/prober"
	"embedbot/internal/progress"
	"embedbot/internal/queue"
	"embedbot/internal/resolver"
)

// recordingRunner captures requests instead of running them.
type recordingRunner struct {
	mu   sync.Mutex
	reqs []models.ConversionRequest
}

func (r *recordingRunner) Run(_ context.Context, req models.ConversionRequest) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return nil
}

func (r *recordingRunner) requests() []models.ConversionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ConversionRequest(nil), r.reqs...)
}

func sequentialTokens() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("TOKEN%07d", n)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *messagingtest.Endpoint, *recordingRunner, queue.Spawner) {
	t.Helper()
	ep := messagingtest.New()
	runner := &recordingRunner{}
	sp := queue.NewUnbounded(nil, zerolog.Nop())
	d := New(ep, runner, sp, zerolog.Nop()).WithTokenSource(sequentialTokens())
	return d, ep, runner, sp
}

func TestDispatch_GoodBot(t *testing.T) {
	d, ep, runner, sp := newTestDispatcher(t)

	m := d.Dispatch(context.Background(), models.InboundMessage{ChatID: 1, MessageID: 5, Text: "Good bot!!"})
	require.NoError(t, sp.Shutdown(context.Background()))

	assert.Equal(t, MatchFeedback, m)
	calls := ep.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, messagingtest.CallReply, calls[0].Kind)
	assert.Equal(t, consts.MessageThanks, calls[0].Text)
	assert.Equal(t, 5, calls[0].MessageID)
	assert.Empty(t, runner.requests())
}

func TestDispatch_GoodBotAnyCase(t *testing.T) {
	for _, text := range []string{"good bot", "GOOD BOT", "what a gOoD BoT you are"} {
		d, ep, _, _ := newTestDispatcher(t)
		assert.Equal(t, MatchFeedback, d.Dispatch(context.Background(), models.InboundMessage{Text: text}), text)
		assert.Len(t, ep.Filter(messagingtest.CallReply), 1, text)
	}
}

func TestDispatch_Commands(t *testing.T) {
	for _, text := range []string{"/start", "/help", "/start@EmbedBot", "/help me please"} {
		d, ep, runner, _ := newTestDispatcher(t)
		m := d.Dispatch(context.Background(), models.InboundMessage{ChatID: 3, Text: text})
		assert.Equal(t, MatchCommand, m, text)
		assert.Equal(t, []string{consts.MessageStart, consts.MessageHelp}, ep.Texts(messagingtest.CallSend), text)
		assert.Empty(t, runner.requests())
	}
}

func TestDispatch_UnknownCommandFallsThrough(t *testing.T) {
	d, ep, _, _ := newTestDispatcher(t)
	assert.Equal(t, MatchNone, d.Dispatch(context.Background(), models.InboundMessage{Text: "/settings"}))
	assert.Empty(t, ep.Calls())
}

func TestDispatch_Links(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Match
		url  string
	}{
		{"embed", "https://www.reddit.com/mediaembed/abc", MatchEmbedLink, "https://www.reddit.com/mediaembed/abc"},
		{"embed without www", "look https://reddit.com/mediaembed/xyz?a=1 ok", MatchEmbedLink, "https://reddit.com/mediaembed/xyz?a=1"},
		{"stream", "check this out https://v.redd.it/abc123 nice", MatchStreamLink, "https://v.redd.it/abc123"},
		{"embed wins over stream", "https://v.redd.it/first https://reddit.com/mediaembed/second", MatchEmbedLink, "https://reddit.com/mediaembed/second"},
		{"first link only", "https://v.redd.it/one https://v.redd.it/two", MatchStreamLink, "https://v.redd.it/one"},
		{"link wins over feedback", "good bot https://v.redd.it/abc", MatchStreamLink, "https://v.redd.it/abc"},
		{"http is ignored", "http://v.redd.it/abc", MatchNone, ""},
		{"scheme is case sensitive", "HTTPS://v.redd.it/abc", MatchNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, _, runner, sp := newTestDispatcher(t)
			m := d.Dispatch(context.Background(), models.InboundMessage{ChatID: 9, MessageID: 11, Text: tc.text})
			require.NoError(t, sp.Shutdown(context.Background()))

			assert.Equal(t, tc.want, m)
			reqs := runner.requests()
			if tc.url == "" {
				assert.Empty(t, reqs)
				return
			}
			require.Len(t, reqs, 1)
			assert.Equal(t, tc.url, reqs[0].URL)
			assert.Equal(t, int64(9), reqs[0].ChatID)
			assert.Equal(t, 11, reqs[0].MessageID)
		})
	}
}

func TestDispatch_DistinctArtifactsPerRequest(t *testing.T) {
	d, _, runner, sp := newTestDispatcher(t)
	pl := pipeline.New(pipeline.Params{TempDir: t.TempDir()})

	d.Dispatch(context.Background(), models.InboundMessage{Text: "https://v.redd.it/same"})
	d.Dispatch(context.Background(), models.InboundMessage{Text: "https://v.redd.it/same"})
	require.NoError(t, sp.Shutdown(context.Background()))

	reqs := runner.requests()
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].Token, reqs[1].Token)
	assert.NotEqual(t, pl.ArtifactPath(reqs[0]), pl.ArtifactPath(reqs[1]))
}

func TestDispatch_DoesNotWaitForPipeline(t *testing.T) {
	ep := messagingtest.New()
	release := make(chan struct{})
	sp := queue.NewUnbounded(nil, zerolog.Nop())
	d := New(ep, blockingRunner(release), sp, zerolog.Nop())

	m := d.Dispatch(context.Background(), models.InboundMessage{Text: "https://v.redd.it/slow"})
	assert.Equal(t, MatchStreamLink, m)
	assert.Equal(t, 1, sp.Active())

	close(release)
	require.NoError(t, sp.Shutdown(context.Background()))
}

type blockingRunner chan struct{}

func (b blockingRunner) Run(context.Context, models.ConversionRequest) error {
	<-b
	return nil
}

func TestParseCommand(t *testing.T) {
	cases := map[string]string{
		"/start":           "start",
		"/Help":            "help",
		"/start@Bot extra": "start",
	}
	for in, want := range cases {
		got, ok := parseCommand(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"start", "", "/", "/@Bot"} {
		_, ok := parseCommand(in)
		assert.False(t, ok, in)
	}
}

// The helper process plays both external tools for the end-to-end test.
func helperCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
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
	tool, rest := args[0], args[1:]
	switch tool {
	case "yt-dlp":
		dest := rest[len(rest)-2]
		fmt.Println("[download]  10.0% of 1.00MiB")
		fmt.Println("[download]  55.5% of 1.00MiB")
		fmt.Println("[download] 100.0% of 1.00MiB")
		if err := os.WriteFile(dest, []byte("video"), 0o600); err != nil {
			os.Exit(3)
		}
	case "ffprobe":
		if strings.Contains(strings.Join(rest, " "), "format=duration") {
			fmt.Println("12.4")
		} else {
			fmt.Println("640x360")
		}
	default:
		os.Exit(127)
	}
	os.Exit(0)
}

func TestEndToEnd_StreamLink(t *testing.T) {
	ep := messagingtest.New()
	var uploaded []models.VideoUpload
	ep.OnVideo = func(v models.VideoUpload) { uploaded = append(uploaded, v) }

	tmp := t.TempDir()
	pl := pipeline.New(pipeline.Params{
		Endpoint: ep,
		Resolver: resolver.New(zerolog.Nop()),
		Fetcher:  downloader.New(downloader.Config{Tool: "yt-dlp"}, zerolog.Nop()).WithCommand(helperCommand),
		Prober:   prober.New("ffprobe").WithCommand(helperCommand),
		Reporter: progress.New(ep, 0, zerolog.Nop()),
		TempDir:  tmp,
		Logger:   zerolog.Nop(),
	})
	sp := queue.NewUnbounded(nil, zerolog.Nop())
	d := New(ep, pl, sp, zerolog.Nop())

	m := d.Dispatch(context.Background(), models.InboundMessage{
		ChatID:    100,
		MessageID: 55,
		Text:      "check this out https://v.redd.it/abc123 nice",
	})
	require.NoError(t, sp.Shutdown(context.Background()))
	assert.Equal(t, MatchStreamLink, m)

	assert.Equal(t, []string{
		consts.MessageConverting("0%"),
		consts.MessageConverting("10.0%"),
		consts.MessageConverting("55.5%"),
		consts.MessageConverting("100.0%"),
		consts.MessageUploading,
	}, ep.Texts(messagingtest.CallEdit))

	require.Len(t, uploaded, 1)
	v := uploaded[0]
	assert.Equal(t, 12, v.Duration)
	assert.Equal(t, 640, v.Width)
	assert.Equal(t, 360, v.Height)
	assert.Equal(t, 55, v.ReplyToMessageID)
	assert.True(t, v.SupportsStreaming)

	calls := ep.Calls()
	assert.Equal(t, messagingtest.CallVideo, calls[len(calls)-2].Kind)
	assert.Equal(t, messagingtest.CallDelete, calls[len(calls)-1].Kind)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "no artifact left behind")
}
