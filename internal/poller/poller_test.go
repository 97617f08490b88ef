package poller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ardiwinata/gradesight/internal/channel"
	"github.com/ardiwinata/gradesight/internal/model"
	"github.com/ardiwinata/gradesight/internal/poller"
	"github.com/ardiwinata/gradesight/internal/store"
)

var notReady = &channel.APIError{Kind: channel.KindNotFound, StatusCode: 404}

// scriptedAPI answers FetchResult from a per-attempt script.
type scriptedAPI struct {
	mu     sync.Mutex
	calls  int
	script func(call int) (model.Status, *model.Evaluation, error)
}

func (f *scriptedAPI) FetchResult(ctx context.Context, submissionID int64) (model.Status, *model.Evaluation, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.script(call)
}

func (f *scriptedAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastConfig(maxAttempts int) poller.Config {
	return poller.Config{Interval: 2 * time.Millisecond, MaxAttempts: maxAttempts}
}

func newFixture(api *scriptedAPI, maxAttempts int) (*poller.Poller, *store.Store) {
	log := zap.NewNop().Sugar()
	st := store.New(nil, log)
	return poller.New(api, st, fastConfig(maxAttempts), log), st
}

func TestTerminalResultStopsPolling(t *testing.T) {
	api := &scriptedAPI{script: func(call int) (model.Status, *model.Evaluation, error) {
		if call <= 5 {
			return model.StatusUnknown, nil, notReady
		}
		return model.StatusEvaluated, &model.Evaluation{
			SubmissionID: 42, Score: 8.5, Confidence: 0.42,
		}, nil
	}}
	p, st := newFixture(api, 30)
	id := st.Adopt(42, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, w.Wait())

	sub, err := st.Get(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusEvaluated, sub.Status)
	require.NotNil(t, sub.Result)
	require.Equal(t, 8.5, sub.Result.Score)
	require.True(t, sub.Result.NeedsReview(0.5), "confidence 0.42 must be flagged for review")

	require.Equal(t, 6, api.count())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 6, api.count(), "no requests after the terminal result")
}

func TestBudgetExhaustionMeansUnknownNotFailed(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		return model.StatusUnknown, nil, notReady
	}}
	p, st := newFixture(api, 30)
	id := st.Adopt(7, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, w.Wait())

	sub, err := st.Get(id)
	require.NoError(t, err)
	require.Equal(t, model.StatusUnknown, sub.Status, "giving up is not the same as the backend failing")
	require.Nil(t, sub.Result)

	require.Equal(t, 30, api.count())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 30, api.count(), "no 31st request")
}

func TestBackendFailureReportsFailed(t *testing.T) {
	api := &scriptedAPI{script: func(call int) (model.Status, *model.Evaluation, error) {
		if call < 3 {
			return model.StatusProcessing, nil, nil
		}
		return model.StatusFailed, nil, nil
	}}
	p, st := newFixture(api, 30)
	id := st.Adopt(7, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, w.Wait())

	sub, _ := st.Get(id)
	require.Equal(t, model.StatusFailed, sub.Status)
	require.Equal(t, 3, api.count())
}

func TestNonTerminalPayloadPromotesToProcessing(t *testing.T) {
	ticked := make(chan struct{}, 1)
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		select {
		case ticked <- struct{}{}:
		default:
		}
		return model.StatusProcessing, nil, nil
	}}
	p, st := newFixture(api, 1000)
	id := st.Adopt(7, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	<-ticked
	require.Eventually(t, func() bool {
		sub, _ := st.Get(id)
		return sub.Status == model.StatusProcessing
	}, time.Second, time.Millisecond)
	w.Stop()
	require.NoError(t, w.Wait())
}

func TestFlakyPollsCountAgainstBudget(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		return model.StatusUnknown, nil, &channel.APIError{Kind: channel.KindServerError, StatusCode: 502}
	}}
	p, st := newFixture(api, 5)
	id := st.Adopt(7, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, w.Wait())

	sub, _ := st.Get(id)
	require.Equal(t, model.StatusUnknown, sub.Status, "flaky polls burn the budget but do not abort")
	require.Equal(t, 5, api.count())
}

func TestUnauthorizedEscalatesImmediately(t *testing.T) {
	api := &scriptedAPI{script: func(call int) (model.Status, *model.Evaluation, error) {
		if call == 1 {
			return model.StatusUnknown, nil, notReady
		}
		return model.StatusUnknown, nil, &channel.APIError{Kind: channel.KindUnauthorized, StatusCode: 401}
	}}
	p, st := newFixture(api, 30)
	id := st.Adopt(7, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	err = w.Wait()
	require.True(t, channel.IsUnauthorized(err))

	sub, _ := st.Get(id)
	require.False(t, sub.Status.Terminal(), "unauthorized does not decide the submission's outcome")
	require.Equal(t, 2, api.count())
}

func TestSinglePollerPerSubmission(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		return model.StatusUnknown, nil, notReady
	}}
	p, st := newFixture(api, 1000)
	id := st.Adopt(7, 1)

	w1, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	w2, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.Same(t, w1, w2, "second Start must return the running watch")

	w1.Stop()
	require.NoError(t, w1.Wait())
}

func TestStopIsIdempotentAndPreventsMutation(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		return model.StatusUnknown, nil, notReady
	}}
	p, st := newFixture(api, 1000)
	id := st.Adopt(7, 1)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	w.Stop()
	w.Stop()
	require.NoError(t, w.Wait())

	sub, _ := st.Get(id)
	require.False(t, sub.Status.Terminal(), "a stopped poller performs no further transitions")
	settled := sub.Status
	time.Sleep(20 * time.Millisecond)
	sub, _ = st.Get(id)
	require.Equal(t, settled, sub.Status)
}

func TestContextCancellationStopsTicks(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		return model.StatusUnknown, nil, notReady
	}}
	p, st := newFixture(api, 1000)
	id := st.Adopt(7, 1)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := p.Start(ctx, id)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.NoError(t, w.Wait())

	calls := api.count()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, calls, api.count())
}

func TestStartOnTerminalSubmissionIsDone(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		t.Error("no request should be issued for a terminal submission")
		return model.StatusUnknown, nil, nil
	}}
	p, st := newFixture(api, 30)
	id := st.Adopt(7, 1)
	st.Transition(id, model.StatusProcessing, nil)
	st.Transition(id, model.StatusFailed, nil)

	w, err := p.Start(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, w.Wait(), "watch for a terminal submission finishes immediately")
	require.Zero(t, api.count())
}

func TestStartWithoutBackendID(t *testing.T) {
	api := &scriptedAPI{script: func(int) (model.Status, *model.Evaluation, error) {
		return model.StatusUnknown, nil, nil
	}}
	log := zap.NewNop().Sugar()
	st := store.New(nil, log)
	p := poller.New(api, st, fastConfig(30), log)

	id := st.Adopt(0, 1) // backend never acked, id 0
	_, err := p.Start(context.Background(), id)
	require.ErrorIs(t, err, poller.ErrNotAcknowledged)
}
