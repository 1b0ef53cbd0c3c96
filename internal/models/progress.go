package models

import "fmt"

type Stage int

const (
	StageFetching Stage = iota + 1
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "fetching"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ProgressEvent is emitted by the fetch adapter. Percent is only set for
// StageFetching, Err only for StageFailed.
type ProgressEvent struct {
	Stage   Stage
	Percent float64
	Err     error
}

func Fetching(pct float64) ProgressEvent { return ProgressEvent{Stage: StageFetching, Percent: pct} }
func Done() ProgressEvent                { return ProgressEvent{Stage: StageDone} }
func Failed(err error) ProgressEvent     { return ProgressEvent{Stage: StageFailed, Err: err} }

// PercentText renders the percentage the way the fetch tool prints it.
func (e ProgressEvent) PercentText() string {
	return fmt.Sprintf("%.1f%%", e.Percent)
}
