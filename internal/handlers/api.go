package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"embedbot/internal/config"
	"embedbot/internal/metrics"
	"embedbot/internal/middleware"
	"embedbot/internal/models"
	"embedbot/internal/queue"
	"embedbot/internal/store"
	"embedbot/internal/util"
)

// Tool is an external binary the bot shells out to.
type Tool interface {
	Tool() string
	Version(ctx context.Context) (string, error)
}

// Pinger is implemented by tracker backends with a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ToolStatus struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SelfTest asks every tool for its version.
func SelfTest(ctx context.Context, tools ...Tool) []ToolStatus {
	out := make([]ToolStatus, 0, len(tools))
	for _, t := range tools {
		st := ToolStatus{Name: t.Tool()}
		if v, err := t.Version(ctx); err != nil {
			st.Error = err.Error()
		} else {
			st.Version = v
		}
		out = append(out, st)
	}
	return out
}

type API struct {
	cfg     *config.OpsConfig
	tracker store.RequestStore
	metrics *metrics.Registry
	spawner queue.Spawner
	tools   []Tool
	logger  zerolog.Logger
}

func NewAPI(cfg *config.OpsConfig, tracker store.RequestStore, reg *metrics.Registry, spawner queue.Spawner, logger zerolog.Logger, tools ...Tool) *API {
	return &API{cfg: cfg, tracker: tracker, metrics: reg, spawner: spawner, tools: tools, logger: logger}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	// CORS and security headers
	corsMw := cors.New(cors.Options{AllowedOrigins: a.cfg.AllowedOrigins, AllowedMethods: []string{"GET", "OPTIONS"}, AllowedHeaders: []string{"*"}, AllowCredentials: false})
	r.Use(corsMw.Handler)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.IPAllowlist(a.cfg.IPAllowlist))
	r.Use(middleware.GlobalRateLimiter(a.cfg.RequestsPerSecond, a.cfg.BurstSize))

	// health stays reachable for probes without a key
	r.Get("/health", a.handleHealth)

	r.Group(func(r chi.Router) {
		keys := map[string]struct{}{}
		for _, k := range a.cfg.APIKeys {
			keys[k] = struct{}{}
		}
		r.Use(middleware.APIKey(a.cfg.RequireAPIKey, keys))

		r.Get("/metrics", a.handleMetrics)
		r.Get("/requests", a.handleRequests)
		r.Get("/requests/{token}", a.handleRequest)
		r.Get("/selftest", a.handleSelfTest)
	})
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"active":    a.spawner.Active(),
		"uptime":    time.Since(a.metrics.UptimeStart).Round(time.Second).String(),
		"completed": a.metrics.CompletedJobs.Load(),
		"failed":    a.metrics.FailedJobs.Load(),
	}
	code := http.StatusOK
	if p, ok := a.tracker.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["tracker_error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.metrics.Snapshot())
}

func (a *API) handleRequests(w http.ResponseWriter, r *http.Request) {
	recs, err := a.tracker.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to list requests")
		writeErr(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	if v := r.URL.Query().Get("chat_id"); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid chat_id")
			return
		}
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.ChatID == chatID {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if state := strings.TrimSpace(r.URL.Query().Get("state")); state != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.State == models.State(state) {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": recs, "count": len(recs)})
}

func (a *API) handleRequest(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !util.IsToken(token) {
		writeErr(w, http.StatusBadRequest, "invalid token")
		return
	}
	rec, err := a.tracker.Get(r.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("token", token).Msg("failed to get request")
		writeErr(w, http.StatusInternalServerError, "failed to get request")
		return
	}
	resp := map[string]any{"request": rec}
	if p, ok := a.spawner.(interface{ Position(string) int }); ok {
		resp["queue_position"] = p.Position(token)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{"tools": SelfTest(ctx, a.tools...)})
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
