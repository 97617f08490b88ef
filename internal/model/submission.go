package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Submission is one uploaded answer sheet tracked through its evaluation
// lifecycle. ID is assigned locally before the upload request goes out;
// SubmissionID is the backend's id, captured at upload ack and immutable
// afterwards.
type Submission struct {
	ID           uuid.UUID   `json:"id"`
	SubmissionID int64       `json:"submission_id"`
	ExamID       int64       `json:"exam_id"`
	Status       Status      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	Result       *Evaluation `json:"result,omitempty"`
	Err          string      `json:"error,omitempty"`
}

// Evaluation is the backend's verdict. Breakdown is whatever JSON object the
// scoring pipeline produced; the key set varies per rubric so it stays raw.
type Evaluation struct {
	SubmissionID   int64           `json:"submission_id"`
	Score          float64         `json:"score"`
	Confidence     float64         `json:"confidence"`
	Feedback       string          `json:"feedback,omitempty"`
	ScoreBreakdown json.RawMessage `json:"score_breakdown,omitempty"`
}

// NeedsReview reports whether the evaluation must be surfaced to the user as
// requiring human follow-up.
func (e *Evaluation) NeedsReview(threshold float64) bool {
	return e.Confidence < threshold
}
