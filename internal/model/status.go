package model

import "strings"

type Status string

const (
	StatusUploading  Status = "uploading"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusEvaluated  Status = "evaluated"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// Terminal reports whether no further automatic transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusEvaluated, StatusFailed, StatusUnknown:
		return true
	}
	return false
}

// CanTransitionTo encodes the lifecycle graph. Everything not listed here
// is an invalid edge and must be rejected by the store.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUploading:
		return next == StatusQueued || next == StatusFailed
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusEvaluated || next == StatusFailed || next == StatusUnknown
	}
	return false
}

// ParseBackendStatus maps the backend's loose status vocabulary onto the
// closed status set. The service uses "success"/"completed"/"graded"
// interchangeably across endpoints, so everything is funneled through this
// one table. ok is false for strings we have never seen.
func ParseBackendStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "completed", "complete", "evaluated", "graded", "done":
		return StatusEvaluated, true
	case "flagged":
		// graded but the backend wants a human to look at it; the score is
		// present, so it counts as evaluated and the confidence threshold
		// drives the review flag
		return StatusEvaluated, true
	case "failed", "error":
		return StatusFailed, true
	case "processing", "in_progress", "running", "started":
		return StatusProcessing, true
	case "queued", "pending", "uploaded":
		return StatusQueued, true
	}
	return StatusUnknown, false
}
