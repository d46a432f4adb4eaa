package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
	"golang.org/x/time/rate"

	"enunanota/internal/httpapi"
	"enunanota/internal/logging"
	"enunanota/internal/middleware"
	"enunanota/internal/musicapi"
	"enunanota/internal/resolver"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})

	broker := musicapi.NewTokenBroker(cfg.ClientID, cfg.ClientSecret, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	executor := musicapi.NewExecutor(musicapi.DefaultRetryPolicy(), limiter, logger)

	spotifyClient := musicapi.NewSpotifyClient(executor)
	itunesClient := musicapi.NewITunesClient(executor)

	trackResolver := resolver.New(spotifyClient, itunesClient, broker, logger)
	if len(cfg.Markets) > 0 {
		trackResolver.SetMarkets(cfg.Markets)
	}

	var oauthCfg *oauth2.Config
	if cfg.RedirectURI != "" {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"playlist-read-private", "playlist-read-collaborative"},
			Endpoint:     spotify.Endpoint,
		}
	}

	api := httpapi.New(trackResolver, broker, oauthCfg, cfg.RequireSession, logger)

	handler := middleware.Recovery(logger)(
		middleware.RequestLogging(logger)(
			middleware.CORS(cfg.AllowedOrigins)(api.Routes())))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("addr", server.Addr).Msg("preview API listening")
	return server.ListenAndServe()
}
