// Package resolver turns a user supplied link into a URL the fetch tool can
// download. Reddit mediaembed pages are scraped for their DASH manifest;
// anything else is passed through untouched.
package resolver

import (
	"context"
	"html"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"embedbot/internal/models"
)

const (
	// The embed endpoint serves a different page to unknown clients.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/66.0.3359.181 Safari/537.36"

	DefaultMaxBodyBytes = 5 << 20
)

var (
	EmbedURLRe = regexp.MustCompile(`^https://(www\.)?reddit\.com/mediaembed`)
	mpdURLRe   = regexp.MustCompile(`data-mpd-url="([^"]*)"`)
)

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithTimeout bounds each request. It applies to a copy of the client, so a
// shared client such as http.DefaultClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

func WithMaxBodyBytes(n int64) Option {
	return func(r *Resolver) { r.maxBody = n }
}

type Resolver struct {
	client  *http.Client
	timeout time.Duration
	maxBody int64
	logger  zerolog.Logger
}

func New(logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		client:  &http.Client{},
		maxBody: DefaultMaxBodyBytes,
		logger:  logger,
	}
	for _, o := range opts {
		o(r)
	}
	if r.timeout > 0 {
		c := *r.client
		c.Timeout = r.timeout
		r.client = &c
	}
	return r
}

// IsEmbed reports whether rawURL needs scraping before it can be fetched.
func IsEmbed(rawURL string) bool {
	return EmbedURLRe.MatchString(rawURL)
}

// Resolve returns the manifest URL for rawURL. Errors are *models.DownloadError
// or *models.UpstreamStatusError.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	if !IsEmbed(rawURL) {
		return rawURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &models.DownloadError{URL: rawURL, Reason: "build request", Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &models.DownloadError{URL: rawURL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, r.maxBody))
		return "", &models.UpstreamStatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody))
	if err != nil {
		return "", &models.DownloadError{URL: rawURL, Reason: "read body", Err: err}
	}

	matches := mpdURLRe.FindAllSubmatch(body, -1)
	if len(matches) != 1 {
		r.logger.Debug().Str("url", rawURL).Int("matches", len(matches)).Msg("embed page manifest ambiguous")
		return "", &models.DownloadError{URL: rawURL, Reason: "expected exactly one data-mpd-url attribute"}
	}

	manifest := html.UnescapeString(string(matches[0][1]))
	r.logger.Debug().Str("url", rawURL).Str("manifest", manifest).Msg("embed page resolved")
	return manifest, nil
}
