// Package channel wraps every call to the evaluation backend: it attaches
// the bearer credential, classifies failures into a small taxonomy, and
// normalizes the backend's loose result payloads into the model types.
package channel

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ardiwinata/gradesight/internal/credentials"
)

type Channel struct {
	http  *resty.Client
	creds *credentials.Store
	log   *zap.SugaredLogger
}

func New(baseURL string, creds *credentials.Store, log *zap.SugaredLogger) *Channel {
	return &Channel{
		http:  resty.New().SetBaseURL(baseURL),
		creds: creds,
		log:   log.Named("channel"),
	}
}

// Send issues one JSON request. The credential is read from the store at
// call time, never cached, so a token refreshed or cleared by another call
// is picked up on the next one.
func (c *Channel) Send(ctx context.Context, method, path string, body any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return c.execute(req, method, path)
}

func (c *Channel) execute(req *resty.Request, method, path string) (*resty.Response, error) {
	token, err := c.creds.Load()
	if err != nil {
		c.log.Warnw("could not read stored credential", "error", err)
	}
	if token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &APIError{Kind: KindUnreachable, Err: err}
	}
	if resp.IsSuccess() {
		return resp, nil
	}
	return nil, c.classify(resp)
}

// classify maps an HTTP failure onto the error taxonomy. On 401 the stored
// credential is cleared so the caller is forced back through login; that is
// the only state this component mutates outside the call itself.
func (c *Channel) classify(resp *resty.Response) *APIError {
	code := resp.StatusCode()
	msg := serverMessage(resp.Body())

	switch {
	case code == http.StatusUnauthorized:
		if err := c.creds.Clear(); err != nil {
			c.log.Warnw("failed to clear credential after 401", "error", err)
		}
		return &APIError{Kind: KindUnauthorized, StatusCode: code, Message: msg}
	case code == http.StatusNotFound:
		return &APIError{Kind: KindNotFound, StatusCode: code, Message: msg}
	case code >= 400 && code < 500:
		return &APIError{Kind: KindClientError, StatusCode: code, Message: msg}
	default:
		return &APIError{Kind: KindServerError, StatusCode: code, Message: msg}
	}
}

// serverMessage pulls a human-readable message out of an error body. The
// backend uses "detail", older endpoints "message".
func serverMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "detail").String(); msg != "" {
		return msg
	}
	return gjson.GetBytes(body, "message").String()
}
