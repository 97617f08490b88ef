package stub_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ardiwinata/gradesight/internal/channel"
	"github.com/ardiwinata/gradesight/internal/credentials"
	"github.com/ardiwinata/gradesight/internal/model"
	"github.com/ardiwinata/gradesight/internal/poller"
	"github.com/ardiwinata/gradesight/internal/store"
	"github.com/ardiwinata/gradesight/internal/stub"
)

func startBackend(t *testing.T, opts stub.Options) (*stub.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := stub.New(opts)
	go func() {
		_ = srv.App.Listener(ln)
	}()
	t.Cleanup(func() { _ = srv.App.Shutdown() })

	return srv, "http://" + ln.Addr().String() + "/api/v1"
}

func newClient(t *testing.T, baseURL string) (*channel.Channel, *credentials.Store) {
	t.Helper()
	creds, err := credentials.NewStore(t.TempDir())
	require.NoError(t, err)
	return channel.New(baseURL, creds, zap.NewNop().Sugar()), creds
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, baseURL := startBackend(t, stub.Options{})
	ch, _ := newClient(t, baseURL)

	err := ch.Login(context.Background(), "demo@example.com", "wrong")
	require.True(t, channel.IsUnauthorized(err))
}

func TestUploadRequiresAuth(t *testing.T) {
	_, baseURL := startBackend(t, stub.Options{})
	ch, _ := newClient(t, baseURL)

	_, err := ch.Upload(context.Background(), 1, "sheet.pdf", strings.NewReader("x"))
	require.True(t, channel.IsUnauthorized(err))
}

func TestFullLifecycle(t *testing.T) {
	_, baseURL := startBackend(t, stub.Options{
		ReadyAfterPolls: 3,
		Score:           8.5,
		Confidence:      0.42,
		Feedback:        "partially correct",
	})
	ch, _ := newClient(t, baseURL)
	require.NoError(t, ch.Login(context.Background(), "demo@example.com", "demo1234"))

	log := zap.NewNop().Sugar()
	st := store.New(ch, log)
	p := poller.New(ch, st, poller.Config{Interval: 5 * time.Millisecond, MaxAttempts: 30}, log)

	id, err := st.Create(context.Background(), 1, "sheet.pdf", strings.NewReader("Answer: Paris"))
	require.NoError(t, err)

	sub, err := st.Get(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, sub.Status)
	require.EqualValues(t, 1, sub.SubmissionID)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, w.Wait())

	sub, err = st.Get(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusEvaluated, sub.Status)
	require.NotNil(t, sub.Result)
	require.Equal(t, 8.5, sub.Result.Score)
	require.Equal(t, 0.42, sub.Result.Confidence)
	require.Equal(t, "partially correct", sub.Result.Feedback)
	require.True(t, sub.Result.NeedsReview(0.5))
	require.NotEmpty(t, sub.Result.ScoreBreakdown)

	// the dashboard listing reflects the graded submission
	subs, err := ch.ListSubmissions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "graded", subs[0].Status)
	require.NotNil(t, subs[0].Score)
	require.Equal(t, 8.5, *subs[0].Score)
}

func TestExpiredTokenIsClearedAndEscalated(t *testing.T) {
	srv, baseURL := startBackend(t, stub.Options{})
	ch, creds := newClient(t, baseURL)
	require.NoError(t, ch.Login(context.Background(), "demo@example.com", "demo1234"))

	srv.RevokeTokens()

	_, err := ch.ListSubmissions(context.Background())
	require.True(t, channel.IsUnauthorized(err))

	token, err := creds.Load()
	require.NoError(t, err)
	require.Empty(t, token, "rejected credential must be wiped from storage")
}

func TestRegisterThenUpload(t *testing.T) {
	_, baseURL := startBackend(t, stub.Options{})
	ch, _ := newClient(t, baseURL)

	require.NoError(t, ch.Register(context.Background(), "new@example.com", "pw12345", "New User"))
	id, err := ch.Upload(context.Background(), 2, "sheet.png", strings.NewReader("scribbles"))
	require.NoError(t, err)
	require.NotZero(t, id)

	// submissions are scoped per user
	other, _ := newClient(t, baseURL)
	require.NoError(t, other.Login(context.Background(), "demo@example.com", "demo1234"))
	subs, err := other.ListSubmissions(context.Background())
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestResultsNotReadyBeforeProcessingStarts(t *testing.T) {
	_, baseURL := startBackend(t, stub.Options{})
	ch, _ := newClient(t, baseURL)
	require.NoError(t, ch.Login(context.Background(), "demo@example.com", "demo1234"))

	id, err := ch.Upload(context.Background(), 1, "sheet.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	_, _, err = ch.FetchResult(context.Background(), id)
	require.True(t, channel.IsNotFound(err), "no result before process start")
}
