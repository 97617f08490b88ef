// Package poller drives submissions from queued/processing to a terminal
// state by querying the result endpoint on a bounded schedule. Observed
// transitions are reported through the lifecycle store; the poller never
// mutates submission state on its own.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/ardiwinata/gradesight/internal/channel"
	"github.com/ardiwinata/gradesight/internal/model"
)

var ErrNotAcknowledged = errors.New("submission has no backend id yet")

// ResultAPI is the slice of the request channel the poller needs.
type ResultAPI interface {
	FetchResult(ctx context.Context, submissionID int64) (model.Status, *model.Evaluation, error)
}

// Lifecycle is the store mutation surface transitions are reported through.
type Lifecycle interface {
	Transition(id uuid.UUID, next model.Status, result *model.Evaluation) bool
	Get(id uuid.UUID) (model.Submission, error)
}

type Config struct {
	Interval    time.Duration
	Jitter      time.Duration // stdev of the tick jitter; 0 means fixed ticks
	MaxAttempts int
}

type Poller struct {
	api   ResultAPI
	store Lifecycle
	cfg   Config
	log   *zap.SugaredLogger

	mu     sync.Mutex
	active map[uuid.UUID]*Watch
}

// Watch is a handle on one running poll loop.
type Watch struct {
	id        uuid.UUID
	backendID int64

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	err error
}

func New(api ResultAPI, store Lifecycle, cfg Config, log *zap.SugaredLogger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	return &Poller{
		api:    api,
		store:  store,
		cfg:    cfg,
		log:    log.Named("poller"),
		active: make(map[uuid.UUID]*Watch),
	}
}

// Start begins polling for the given submission. At most one poller runs
// per submission id: a second Start returns the already-running watch. A
// submission already in a terminal state gets a watch that is immediately
// done.
func (p *Poller) Start(ctx context.Context, id uuid.UUID) (*Watch, error) {
	sub, err := p.store.Get(id)
	if err != nil {
		return nil, err
	}
	if sub.SubmissionID == 0 {
		return nil, ErrNotAcknowledged
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.active[id]; ok {
		return w, nil
	}

	w := &Watch{
		id:        id,
		backendID: sub.SubmissionID,
		done:      make(chan struct{}),
	}
	if sub.Status.Terminal() {
		close(w.done)
		return w, nil
	}

	ctx, w.cancel = context.WithCancel(ctx)
	p.active[id] = w
	go p.run(ctx, w)
	return w, nil
}

// Stop cancels the watch. Idempotent; once Stop returns the loop may still
// be unwinding, but no transition will be applied after the stopped flag is
// set.
func (w *Watch) Stop() {
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		if w.cancel != nil {
			w.cancel()
		}
	})
}

// Wait blocks until the watch finishes and returns the escalated error, if
// any (today only an Unauthorized poll ends the watch with an error).
func (w *Watch) Wait() error {
	<-w.done
	return w.err
}

func (p *Poller) run(ctx context.Context, w *Watch) {
	defer close(w.done)
	defer func() {
		p.mu.Lock()
		delete(p.active, w.id)
		p.mu.Unlock()
	}()

	ticker := jitterbug.New(p.cfg.Interval, &jitterbug.Norm{Stdev: p.cfg.Jitter})
	defer ticker.Stop()

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if w.stopped.Load() {
			return
		}

		status, eval, err := p.api.FetchResult(ctx, w.backendID)

		// A result that was in flight when Stop was called must not
		// mutate state.
		if w.stopped.Load() {
			return
		}

		switch {
		case err == nil && status == model.StatusEvaluated:
			p.promoteIfQueued(w.id)
			p.store.Transition(w.id, model.StatusEvaluated, eval)
			return
		case err == nil && status == model.StatusFailed:
			p.promoteIfQueued(w.id)
			p.store.Transition(w.id, model.StatusFailed, nil)
			return
		case err == nil:
			if status == model.StatusProcessing {
				p.promoteIfQueued(w.id)
			}
		case channel.IsNotFound(err):
			// expected while the evaluation is not ready
		case channel.IsUnauthorized(err):
			// nothing else will succeed until the user logs in again
			p.log.Warnw("credential rejected while polling",
				"submission_id", w.backendID, "attempt", attempt)
			w.err = err
			return
		default:
			// one flaky poll must not kill the wait, but it spends an
			// attempt
			p.log.Warnw("poll attempt failed",
				"submission_id", w.backendID, "attempt", attempt, "error", err)
		}
	}

	if w.stopped.Load() {
		return
	}
	p.log.Infow("retry budget exhausted, outcome unconfirmed",
		"submission_id", w.backendID, "attempts", p.cfg.MaxAttempts)
	p.promoteIfQueued(w.id)
	p.store.Transition(w.id, model.StatusUnknown, nil)
}

// promoteIfQueued moves a still-queued record to processing before a
// processing-edge transition is applied. The backend occasionally reports a
// terminal result without the client ever observing the processing stage.
func (p *Poller) promoteIfQueued(id uuid.UUID) {
	if sub, err := p.store.Get(id); err == nil && sub.Status == model.StatusQueued {
		p.store.Transition(id, model.StatusProcessing, nil)
	}
}
