package main

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"github.com/ardiwinata/gradesight/internal/middleware"
	"github.com/ardiwinata/gradesight/internal/stub"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = ":8000"
	}

	delay := 10 * time.Second
	if v := os.Getenv("STUB_PROCESS_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			delay = d
		}
	}

	server := stub.New(stub.Options{
		ProcessDelay: delay,
		Score:        8.5,
		Confidence:   0.42,
		Feedback:     "Good coverage of the main points; the second answer misses the key term.",
		Middleware: []fiber.Handler{
			logger.New(),
			middleware.RateLimiter(50, 1*time.Minute),
		},
	})

	log.Println("Stub evaluation backend running on", port)
	log.Println("Demo account: demo@example.com / demo1234")
	if err := server.App.Listen(port); err != nil {
		log.Fatal(err)
	}
}
