package models

import (
	"errors"
	"fmt"
)

// DownloadError covers transport failures and a manifest that could not be
// extracted unambiguously from the embed page.
type DownloadError struct {
	URL    string
	Reason string
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Reason)
}

func (e *DownloadError) Unwrap() error { return e.Err }

type UpstreamStatusError struct {
	URL  string
	Code int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream %s returned HTTP %d", e.URL, e.Code)
}

// ConversionError means the fetch tool could not be started or exited non-zero.
type ConversionError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe %s: %v", e.Path, e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload: %v", e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

var ErrMissingTool = errors.New("external tool not configured")
