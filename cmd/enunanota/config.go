package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type config struct {
	Port            string
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	AllowedOrigins  []string
	Markets         []string
	RequireSession  bool
	RequestsPerSec  float64
	LogLevel        string
	LogFormat       string
}

func loadConfig() (config, error) {
	cfg := config{
		Port:           envOrDefault("PORT", "8080"),
		ClientID:       os.Getenv("SPOTIFY_CLIENT_ID"),
		ClientSecret:   os.Getenv("SPOTIFY_CLIENT_SECRET"),
		RedirectURI:    os.Getenv("SPOTIFY_REDIRECT_URI"),
		RequireSession: boolEnv("REQUIRE_SESSION"),
		RequestsPerSec: floatEnv("REQUESTS_PER_SECOND", 10),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return config{}, errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required")
	}

	cfg.AllowedOrigins = splitEnv("CORS_ALLOWED_ORIGINS")
	cfg.Markets = splitEnv("MARKETS")

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func floatEnv(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
