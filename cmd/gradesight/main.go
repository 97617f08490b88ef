// gradesight is a CLI for the answer-sheet evaluation service: it uploads
// answer sheets, drives their asynchronous evaluation, and polls for the
// verdict.
//
// Usage:
//
//	gradesight login -email you@example.com -password secret
//	gradesight upload -exam 1 -file sheet.pdf
//	gradesight watch -id 42
//	gradesight list
//	gradesight logout
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ardiwinata/gradesight/internal/channel"
	"github.com/ardiwinata/gradesight/internal/config"
	"github.com/ardiwinata/gradesight/internal/credentials"
	"github.com/ardiwinata/gradesight/internal/model"
	"github.com/ardiwinata/gradesight/internal/poller"
	"github.com/ardiwinata/gradesight/internal/store"
)

type app struct {
	channel *channel.Channel
	store   *store.Store
	poller  *poller.Poller
	cfg     *config.PollerConfig
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appCfg := config.LoadAppConfig()
	pollCfg := config.LoadPollerConfig()

	var logger *zap.Logger
	var err error
	if appCfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	creds, err := credentials.NewStore(os.Getenv("GRADESIGHT_CONFIG_DIR"))
	if err != nil {
		log.Fatal(err)
	}

	ch := channel.New(appCfg.BaseURL, creds, sugar)
	st := store.New(ch, sugar)
	pl := poller.New(ch, st, poller.Config{
		Interval:    pollCfg.Interval,
		MaxAttempts: pollCfg.MaxAttempts,
	}, sugar)

	a := &app{channel: ch, store: st, poller: pl, cfg: pollCfg}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "login":
		err = a.login(ctx, os.Args[2:])
	case "register":
		err = a.register(ctx, os.Args[2:])
	case "logout":
		err = creds.Clear()
		if err == nil {
			fmt.Println("Logged out.")
		}
	case "upload":
		err = a.upload(ctx, os.Args[2:])
	case "watch":
		err = a.watch(ctx, os.Args[2:])
	case "list":
		err = a.list(ctx)
	case "result":
		err = a.result(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if channel.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "Your session has expired. Run `gradesight login` and try again.")
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gradesight <login|register|logout|upload|watch|list|result> [flags]")
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)
	if *email == "" || *password == "" {
		return fmt.Errorf("login requires -email and -password")
	}
	if err := a.channel.Login(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Println("Logged in as", *email)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "full name")
	fs.Parse(args)
	if *email == "" || *password == "" {
		return fmt.Errorf("register requires -email and -password")
	}
	if err := a.channel.Register(ctx, *email, *password, *name); err != nil {
		return err
	}
	fmt.Println("Registered and logged in as", *email)
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	examID := fs.Int64("exam", 0, "exam id the sheet belongs to")
	path := fs.String("file", "", "answer sheet file (pdf or image)")
	noWatch := fs.Bool("no-watch", false, "submit without waiting for the verdict")
	fs.Parse(args)
	if *examID == 0 || *path == "" {
		return fmt.Errorf("upload requires -exam and -file")
	}

	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	id, err := a.store.Create(ctx, *examID, filepath.Base(*path), f)
	if err != nil {
		return err
	}
	sub, _ := a.store.Get(id)
	fmt.Printf("Uploaded: submission #%d (%s)\n", sub.SubmissionID, sub.Status)

	if *noWatch {
		return nil
	}
	return a.follow(ctx, id)
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	submissionID := fs.Int64("id", 0, "backend submission id")
	examID := fs.Int64("exam", 0, "exam id (informational)")
	fs.Parse(args)
	if *submissionID == 0 {
		return fmt.Errorf("watch requires -id")
	}
	id := a.store.Adopt(*submissionID, *examID)
	return a.follow(ctx, id)
}

// follow runs the poller for one submission until it reaches a terminal
// state or the user interrupts. Interrupting stops the poller before any
// in-flight poll response can mutate state.
func (a *app) follow(ctx context.Context, id uuid.UUID) error {
	w, err := a.poller.Start(ctx, id)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	fmt.Println("Waiting for evaluation...")
	if err := w.Wait(); err != nil {
		return err
	}

	sub, err := a.store.Get(id)
	if err != nil {
		return err
	}
	switch sub.Status {
	case model.StatusEvaluated:
		fmt.Printf("Evaluated: score %.2f (confidence %.2f)\n", sub.Result.Score, sub.Result.Confidence)
		if sub.Result.Feedback != "" {
			fmt.Println("Feedback:", sub.Result.Feedback)
		}
		if sub.Result.NeedsReview(a.cfg.ReviewThreshold) {
			fmt.Println("Low confidence: this evaluation needs human review.")
		}
	case model.StatusFailed:
		fmt.Println("Evaluation failed.")
	case model.StatusUnknown:
		fmt.Println("Could not confirm the outcome. Check back later with `gradesight list`.")
	default:
		fmt.Println("Stopped while still", sub.Status)
	}
	return nil
}

func (a *app) list(ctx context.Context) error {
	subs, err := a.channel.ListSubmissions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Println("No submissions yet.")
		return nil
	}
	fmt.Printf("%-6s %-6s %-12s %-20s %s\n", "ID", "EXAM", "STATUS", "CREATED", "SCORE")
	for _, s := range subs {
		score := "-"
		if s.Score != nil {
			score = fmt.Sprintf("%.2f", *s.Score)
		}
		fmt.Printf("%-6d %-6d %-12s %-20s %s\n", s.ID, s.ExamID, s.Status, s.CreatedAt, score)
	}
	return nil
}

func (a *app) result(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("result", flag.ExitOnError)
	submissionID := fs.Int64("id", 0, "backend submission id")
	fs.Parse(args)
	if *submissionID == 0 {
		return fmt.Errorf("result requires -id")
	}

	status, eval, err := a.channel.FetchResult(ctx, *submissionID)
	if err != nil {
		if channel.IsNotFound(err) {
			fmt.Println("Still evaluating, no result yet.")
			return nil
		}
		return err
	}
	if eval == nil {
		fmt.Println("Status:", status)
		return nil
	}
	fmt.Printf("Score: %.2f (confidence %.2f)\n", eval.Score, eval.Confidence)
	if eval.Feedback != "" {
		fmt.Println("Feedback:", eval.Feedback)
	}
	if eval.NeedsReview(a.cfg.ReviewThreshold) {
		fmt.Println("Low confidence: this evaluation needs human review.")
	}
	return nil
}
