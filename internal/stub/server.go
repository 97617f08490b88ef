// Package stub is a local fake of the evaluation backend. It implements
// the REST surface the client consumes and deliberately reproduces the
// real service's quirks: 404 while results are not ready, "uploaded" /
// "queued" / "graded" submission statuses next to a "success" result
// status, and the score living under a different key than the listing.
package stub

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/ardiwinata/gradesight/internal/dto"
)

// Options shape the fake evaluation pipeline.
type Options struct {
	// ReadyAfterPolls makes a started submission's result available after
	// this many result queries have answered 404. Zero means the result is
	// ready as soon as processing has started (unless ProcessDelay is set).
	ReadyAfterPolls int
	// ProcessDelay makes the result available this long after processing
	// started. Ignored when ReadyAfterPolls is set.
	ProcessDelay time.Duration

	Score      float64
	Confidence float64
	Feedback   string

	// Middleware is registered ahead of the routes, after recover and
	// cors. The stubserver binary adds request logging and rate limiting
	// here.
	Middleware []fiber.Handler
}

type submission struct {
	id        int64
	owner     string
	examID    int64
	status    string
	createdAt time.Time
	started   bool
	startedAt time.Time
	polls     int
}

type Server struct {
	App  *fiber.App
	opts Options

	mu     sync.Mutex
	users  map[string]string // email -> password
	tokens map[string]string // token -> email
	subs   map[int64]*submission
	nextID int64
}

func New(opts Options) *Server {
	s := &Server{
		opts:   opts,
		users:  map[string]string{"demo@example.com": "demo1234"},
		tokens: make(map[string]string),
		subs:   make(map[int64]*submission),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: "*"}))
	for _, m := range opts.Middleware {
		app.Use(m)
	}

	v1 := app.Group("/api/v1")
	v1.Post("/auth/register", s.register)
	v1.Post("/auth/login", s.login)

	authed := v1.Group("", s.requireToken)
	authed.Post("/uploads", s.upload)
	authed.Post("/process/start/:id", s.startProcessing)
	authed.Get("/results/:id", s.results)
	authed.Get("/submissions", s.listSubmissions)

	s.App = app
	return s
}

func detail(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(dto.ErrorResponse{Detail: msg})
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return detail(c, fiber.StatusUnauthorized, "Not authenticated")
	}
	s.mu.Lock()
	email, ok := s.tokens[header[len(prefix):]]
	s.mu.Unlock()
	if !ok {
		return detail(c, fiber.StatusUnauthorized, "Invalid or expired token")
	}
	c.Locals("email", email)
	return c.Next()
}

func (s *Server) register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return detail(c, fiber.StatusBadRequest, "email and password are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		return detail(c, fiber.StatusBadRequest, "email already registered")
	}
	s.users[req.Email] = req.Password
	return c.JSON(dto.TokenResponse{AccessToken: s.issueToken(req.Email)})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "malformed login payload")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if password, ok := s.users[req.Email]; !ok || password != req.Password {
		return detail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	return c.JSON(dto.TokenResponse{AccessToken: s.issueToken(req.Email)})
}

// issueToken must be called with the lock held.
func (s *Server) issueToken(email string) string {
	token := uuid.NewString()
	s.tokens[token] = email
	return token
}

// RevokeTokens invalidates every issued token, so the next authenticated
// call answers 401. Used by tests to simulate credential expiry.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

func (s *Server) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "file is required")
	}
	if file.Size == 0 {
		return detail(c, fiber.StatusBadRequest, "File is empty")
	}
	examID, err := strconv.ParseInt(c.FormValue("exam_id"), 10, 64)
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "exam_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := &submission{
		id:        s.nextID,
		owner:     c.Locals("email").(string),
		examID:    examID,
		status:    "uploaded",
		createdAt: time.Now(),
	}
	s.subs[sub.id] = sub
	return c.JSON(dto.UploadResponse{
		SubmissionID: sub.id,
		Status:       sub.status,
		StoragePath:  fmt.Sprintf("storage/%s_%s", uuid.NewString(), file.Filename),
	})
}

func (s *Server) startProcessing(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid submission id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return detail(c, fiber.StatusNotFound, "Submission not found")
	}
	sub.status = "queued"
	sub.started = true
	sub.startedAt = time.Now()
	return c.JSON(dto.ProcessStartResponse{
		SubmissionID: id,
		TaskID:       uuid.NewString(),
		Status:       "queued",
	})
}

func (s *Server) results(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid submission id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return detail(c, fiber.StatusNotFound, "Results not ready")
	}

	if !s.ready(sub) {
		sub.polls++
		return detail(c, fiber.StatusNotFound, "Results not ready")
	}

	sub.status = "graded"
	return c.JSON(dto.ResultResponse{
		Status:       "success",
		SubmissionID: id,
		Score:        s.opts.Score,
		Confidence:   s.opts.Confidence,
		Feedback:     s.opts.Feedback,
		ScoreBreakdown: map[string]any{
			"similarity": 0.81,
			"keywords":   0.74,
			"structure":  0.66,
		},
	})
}

// ready must be called with the lock held.
func (s *Server) ready(sub *submission) bool {
	if !sub.started {
		return false
	}
	if s.opts.ReadyAfterPolls > 0 {
		return sub.polls >= s.opts.ReadyAfterPolls
	}
	if s.opts.ProcessDelay > 0 {
		return time.Since(sub.startedAt) >= s.opts.ProcessDelay
	}
	return true
}

func (s *Server) listSubmissions(c *fiber.Ctx) error {
	email := c.Locals("email").(string)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]dto.SubmissionSummary, 0)
	for _, sub := range s.subs {
		if sub.owner != email {
			continue
		}
		summary := dto.SubmissionSummary{
			ID:        sub.id,
			ExamID:    sub.examID,
			Status:    sub.status,
			CreatedAt: sub.createdAt.Format(time.RFC3339),
		}
		if sub.status == "graded" {
			score, confidence := s.opts.Score, s.opts.Confidence
			summary.Score = &score
			summary.Confidence = &confidence
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return c.JSON(dto.SubmissionListResponse{Submissions: out, Total: len(out)})
}
