// Package store owns the canonical Submission records. All lifecycle
// transitions go through Transition, which validates them against the
// lifecycle graph and serializes their application per record, so a stale
// poll response can never regress a terminal submission.
package store

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ardiwinata/gradesight/internal/channel"
	"github.com/ardiwinata/gradesight/internal/model"
)

var ErrNotFound = errors.New("submission not found")

// UploadAPI is the slice of the request channel Create needs.
type UploadAPI interface {
	Upload(ctx context.Context, examID int64, filename string, file io.Reader) (int64, error)
	StartProcessing(ctx context.Context, submissionID int64) error
}

type Store struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*model.Submission
	channel UploadAPI
	log     *zap.SugaredLogger
	now     func() time.Time
}

func New(ch UploadAPI, log *zap.SugaredLogger) *Store {
	return &Store{
		subs:    make(map[uuid.UUID]*model.Submission),
		channel: ch,
		log:     log.Named("store"),
		now:     time.Now,
	}
}

// Create uploads one answer sheet and kicks off backend processing. The
// record starts in uploading; on upload ack it moves to queued with the
// backend id captured, and once process start is acknowledged it moves to
// processing. An Unauthorized upload leaves no record behind at all: the
// credential is already cleared by the channel and the user has to log in
// and resubmit.
func (s *Store) Create(ctx context.Context, examID int64, filename string, file io.Reader) (uuid.UUID, error) {
	sub := &model.Submission{
		ID:        uuid.New(),
		ExamID:    examID,
		Status:    model.StatusUploading,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	backendID, err := s.channel.Upload(ctx, examID, filename, file)
	if err != nil {
		if channel.IsUnauthorized(err) {
			s.mu.Lock()
			delete(s.subs, sub.ID)
			s.mu.Unlock()
			return uuid.Nil, err
		}
		s.fail(sub.ID, err)
		return sub.ID, err
	}

	s.mu.Lock()
	sub.SubmissionID = backendID
	s.mu.Unlock()
	s.Transition(sub.ID, model.StatusQueued, nil)

	// Processing start is fire-and-forget on the backend side; a failure
	// here leaves the record queued so the caller can retry the start
	// without re-uploading.
	if err := s.channel.StartProcessing(ctx, backendID); err != nil {
		s.log.Warnw("process start failed", "submission_id", backendID, "error", err)
		return sub.ID, err
	}
	s.Transition(sub.ID, model.StatusProcessing, nil)
	return sub.ID, nil
}

// Adopt registers a submission that already exists on the backend (for
// example one created in an earlier session) so it can be watched. The
// record enters the lifecycle at queued under a fresh local id.
func (s *Store) Adopt(submissionID, examID int64) uuid.UUID {
	sub := &model.Submission{
		ID:           uuid.New(),
		SubmissionID: submissionID,
		ExamID:       examID,
		Status:       model.StatusUploading,
		CreatedAt:    s.now(),
	}
	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()
	s.Transition(sub.ID, model.StatusQueued, nil)
	return sub.ID
}

func (s *Store) fail(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	sub.Status = model.StatusFailed
	sub.Err = err.Error()
}

// Transition applies one lifecycle move. Edges absent from the graph are
// rejected as a logged no-op; this is what drops duplicate or out-of-order
// poll responses. Returns whether the transition was applied.
func (s *Store) Transition(id uuid.UUID, next model.Status, result *model.Evaluation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		s.log.Warnw("transition for unknown submission", "id", id, "next", next)
		return false
	}
	if !sub.Status.CanTransitionTo(next) {
		s.log.Infow("rejected transition",
			"id", id, "submission_id", sub.SubmissionID,
			"from", sub.Status, "to", next)
		return false
	}

	sub.Status = next
	if next == model.StatusEvaluated {
		sub.Result = result
	} else {
		sub.Result = nil
	}
	s.log.Debugw("transition applied",
		"id", id, "submission_id", sub.SubmissionID, "to", next)
	return true
}

// Get returns a copy of the record so callers cannot mutate store state.
func (s *Store) Get(id uuid.UUID) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return *sub, nil
}

// List returns all submissions, most recent first.
func (s *Store) List() []model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Submission, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
