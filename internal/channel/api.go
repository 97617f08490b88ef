package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/ardiwinata/gradesight/internal/dto"
	"github.com/ardiwinata/gradesight/internal/model"
)

// Login authenticates and stores the returned access token.
func (c *Channel) Login(ctx context.Context, email, password string) error {
	resp, err := c.Send(ctx, http.MethodPost, "/auth/login", dto.LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return err
	}
	return c.saveToken(resp.Body())
}

// Register creates an account; the backend logs the new user straight in.
func (c *Channel) Register(ctx context.Context, email, password, fullName string) error {
	resp, err := c.Send(ctx, http.MethodPost, "/auth/register", dto.RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		return err
	}
	return c.saveToken(resp.Body())
}

func (c *Channel) saveToken(body []byte) error {
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return &APIError{Kind: KindServerError, Message: "auth response carried no access_token"}
	}
	return c.creds.Save(token)
}

// Upload submits one answer sheet as multipart form data and returns the
// backend-assigned submission id.
func (c *Channel) Upload(ctx context.Context, examID int64, filename string, file io.Reader) (int64, error) {
	req := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, file).
		SetFormData(map[string]string{"exam_id": strconv.FormatInt(examID, 10)})

	resp, err := c.execute(req, http.MethodPost, "/uploads")
	if err != nil {
		return 0, err
	}
	id := gjson.GetBytes(resp.Body(), "submission_id").Int()
	if id == 0 {
		return 0, &APIError{Kind: KindServerError, Message: "upload response carried no submission_id"}
	}
	return id, nil
}

// StartProcessing asks the backend to evaluate the submission. The backend
// queues a task and returns immediately; completion is observed through
// FetchResult.
func (c *Channel) StartProcessing(ctx context.Context, submissionID int64) error {
	_, err := c.Send(ctx, http.MethodPost, fmt.Sprintf("/process/start/%d", submissionID), nil)
	return err
}

// FetchResult queries the result endpoint once. While the evaluation is not
// ready the backend answers 404, which comes back as a KindNotFound error.
// The returned status is already normalized into the closed status set.
func (c *Channel) FetchResult(ctx context.Context, submissionID int64) (model.Status, *model.Evaluation, error) {
	resp, err := c.Send(ctx, http.MethodGet, fmt.Sprintf("/results/%d", submissionID), nil)
	if err != nil {
		return model.StatusUnknown, nil, err
	}

	body := resp.Body()
	raw := gjson.GetBytes(body, "status").String()
	status, ok := model.ParseBackendStatus(raw)
	if !ok {
		c.log.Warnw("unrecognized backend status", "submission_id", submissionID, "status", raw)
		return model.StatusUnknown, nil, nil
	}
	if status != model.StatusEvaluated {
		return status, nil, nil
	}

	score := gjson.GetBytes(body, "score")
	if !score.Exists() {
		score = gjson.GetBytes(body, "final_score")
	}
	eval := &model.Evaluation{
		SubmissionID: submissionID,
		Score:        score.Float(),
		Confidence:   gjson.GetBytes(body, "confidence").Float(),
		Feedback:     gjson.GetBytes(body, "feedback").String(),
	}
	if breakdown := gjson.GetBytes(body, "score_breakdown"); breakdown.Exists() {
		eval.ScoreBreakdown = json.RawMessage(breakdown.Raw)
	}
	return status, eval, nil
}

// ListSubmissions fetches the dashboard listing for the current user.
func (c *Channel) ListSubmissions(ctx context.Context) ([]dto.SubmissionSummary, error) {
	resp, err := c.Send(ctx, http.MethodGet, "/submissions", nil)
	if err != nil {
		return nil, err
	}
	var list dto.SubmissionListResponse
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		return nil, &APIError{Kind: KindServerError, Message: "malformed submissions payload", Err: err}
	}
	return list.Submissions, nil
}
