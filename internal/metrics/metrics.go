package metrics

import (
	"sync/atomic"
	"time"
)

// Registry holds process-wide pipeline counters. Failures are split by the
// stage that failed so the ops API can tell upstream trouble from tool trouble.
type Registry struct {
	Started       atomic.Int64
	ActiveJobs    atomic.Int64
	QueuedJobs    atomic.Int64
	CompletedJobs atomic.Int64
	FailedJobs    atomic.Int64

	ResolveFailures atomic.Int64
	FetchFailures   atomic.Int64
	ProbeFailures   atomic.Int64
	UploadFailures  atomic.Int64
	EditFailures    atomic.Int64

	Workers       atomic.Int64
	QueueCapacity atomic.Int64
	UptimeStart   time.Time

	// cumulative pipeline latency in milliseconds, used for the mean
	durationMs atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{UptimeStart: time.Now()}
}

// ObserveDuration records the wall time of one finished pipeline.
func (r *Registry) ObserveDuration(d time.Duration) {
	r.durationMs.Add(d.Milliseconds())
}

// MeanDurationMs is the average latency of finished pipelines.
func (r *Registry) MeanDurationMs() float64 {
	n := r.CompletedJobs.Load() + r.FailedJobs.Load()
	if n == 0 {
		return 0
	}
	return float64(r.durationMs.Load()) / float64(n)
}

func (r *Registry) SuccessRate() float64 {
	s := r.CompletedJobs.Load()
	e := r.FailedJobs.Load()
	t := s + e
	if t == 0 {
		return 1.0
	}
	return float64(s) / float64(t)
}

func (r *Registry) UptimeSeconds() int64 {
	return int64(time.Since(r.UptimeStart).Seconds())
}

// Snapshot is the JSON shape served by the ops API.
type Snapshot struct {
	Started         int64   `json:"started"`
	Active          int64   `json:"active"`
	Queued          int64   `json:"queued"`
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	ResolveFailures int64   `json:"resolve_failures"`
	FetchFailures   int64   `json:"fetch_failures"`
	ProbeFailures   int64   `json:"probe_failures"`
	UploadFailures  int64   `json:"upload_failures"`
	EditFailures    int64   `json:"edit_failures"`
	Workers         int64   `json:"workers"`
	QueueCapacity   int64   `json:"queue_capacity"`
	SuccessRate     float64 `json:"success_rate"`
	MeanDurationMs  float64 `json:"mean_duration_ms"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Started:         r.Started.Load(),
		Active:          r.ActiveJobs.Load(),
		Queued:          r.QueuedJobs.Load(),
		Completed:       r.CompletedJobs.Load(),
		Failed:          r.FailedJobs.Load(),
		ResolveFailures: r.ResolveFailures.Load(),
		FetchFailures:   r.FetchFailures.Load(),
		ProbeFailures:   r.ProbeFailures.Load(),
		UploadFailures:  r.UploadFailures.Load(),
		EditFailures:    r.EditFailures.Load(),
		Workers:         r.Workers.Load(),
		QueueCapacity:   r.QueueCapacity.Load(),
		SuccessRate:     r.SuccessRate(),
		MeanDurationMs:  r.MeanDurationMs(),
		UptimeSeconds:   r.UptimeSeconds(),
	}
}
