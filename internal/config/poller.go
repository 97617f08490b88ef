package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

type PollerConfig struct {
	Interval        time.Duration
	MaxAttempts     int
	ReviewThreshold float64
}

var (
	pollerConfig *PollerConfig
	pollerOnce   sync.Once
)

func LoadPollerConfig() *PollerConfig {
	pollerOnce.Do(func() {
		pollerConfig = &PollerConfig{
			Interval:        envDuration("POLL_INTERVAL", 2*time.Second),
			MaxAttempts:     envInt("POLL_MAX_ATTEMPTS", 30),
			ReviewThreshold: envFloat("REVIEW_THRESHOLD", 0.5),
		}
	})
	return pollerConfig
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
