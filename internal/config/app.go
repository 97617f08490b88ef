package config

import (
	"log"
	"os"
	"sync"
)

type AppConfig struct {
	Name    string
	Env     string
	BaseURL string
}

var (
	appConfig *AppConfig
	appOnce   sync.Once
)

func LoadAppConfig() *AppConfig {
	appOnce.Do(func() {
		env := os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
			log.Printf("Warning: APP_ENV not set, defaulting to %s", env)
		}
		baseURL := os.Getenv("GRADESIGHT_API_URL")
		if baseURL == "" {
			baseURL = "http://127.0.0.1:8000/api/v1"
		}
		appConfig = &AppConfig{
			Name:    "gradesight",
			Env:     env,
			BaseURL: baseURL,
		}
	})
	return appConfig
}
