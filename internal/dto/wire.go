package dto

// Wire payloads for the evaluation service API. The stub server renders the
// same shapes the real backend does, inconsistencies included, so these stay
// faithful to the observed responses rather than to what we wish they were.

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type UploadResponse struct {
	SubmissionID int64  `json:"submission_id"`
	Status       string `json:"status"`
	StoragePath  string `json:"storage_path,omitempty"`
}

type ProcessStartResponse struct {
	SubmissionID int64  `json:"submission_id"`
	TaskID       string `json:"task_id,omitempty"`
	Status       string `json:"status"`
}

// ResultResponse is the backend's result payload. Score is duplicated under
// two names depending on which service wrote it; the channel reads "score"
// and falls back to "final_score".
type ResultResponse struct {
	Status         string         `json:"status"`
	SubmissionID   int64          `json:"submission_id"`
	Score          float64        `json:"score"`
	Confidence     float64        `json:"confidence"`
	Feedback       string         `json:"feedback,omitempty"`
	ScoreBreakdown map[string]any `json:"score_breakdown,omitempty"`
}

type SubmissionSummary struct {
	ID         int64    `json:"id"`
	ExamID     int64    `json:"exam_id"`
	Status     string   `json:"status"`
	CreatedAt  string   `json:"created_at,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type SubmissionListResponse struct {
	Submissions []SubmissionSummary `json:"submissions"`
	Total       int                 `json:"total"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
