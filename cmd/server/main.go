package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/reviewbot/internal/ai"
	"github.com/seanblong/reviewbot/internal/config"
	"github.com/seanblong/reviewbot/internal/githubapp"
	"github.com/seanblong/reviewbot/internal/pipeline"
	"github.com/seanblong/reviewbot/internal/store"
	"github.com/seanblong/reviewbot/internal/webhook"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("reviewbot-server", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Msg("starting reviewbot server")

	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		log.Fatal("webhook secret is required; refusing to accept unsigned events")
	}

	clientConfig, err := aiConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	c, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	logger.Info().Int("embedding_dim", c.Dim()).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	pem, err := os.ReadFile(cfg.GithubPrivateKey)
	if err != nil {
		log.Fatalf("Failed to read GitHub App private key: %v", err)
	}
	gh, err := githubapp.New(cfg.GithubAppID, pem)
	if err != nil {
		log.Fatalf("Failed to create GitHub client: %v", err)
	}

	orch := pipeline.New(gh, c, st, cfg.BotHandle)
	if cfg.TopK > 0 {
		orch.TopK = cfg.TopK
	}

	// stale temp collections from PRs whose close event was missed
	janitor := cron.New()
	if _, err := janitor.AddFunc(cfg.JanitorSchedule, func() {
		cleanupTempCollections(logger, st, time.Duration(cfg.TempMaxAgeHours)*time.Hour)
	}); err != nil {
		log.Fatalf("Invalid janitor schedule %q: %v", cfg.JanitorSchedule, err)
	}
	janitor.Start()
	defer janitor.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.Handle("/webhook", webhook.NewHandler(cfg.WebhookSecret, orch))

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("webhook server listening")
	log.Fatal(s.ListenAndServe())
}

func aiConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			ReviewModel: cfg.ReviewModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Location:    cfg.Location,
			Provider:    ai.ProviderGemini,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func cleanupTempCollections(logger zerolog.Logger, st *store.Store, maxAge time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	names, err := st.ListCollections(ctx, "temp_", maxAge)
	if err != nil {
		logger.Error().Err(err).Msg("janitor: listing temp collections failed")
		return
	}
	for _, name := range names {
		deleted, err := st.DeleteCollection(ctx, name)
		if err != nil {
			logger.Error().Err(err).Str("collection", name).Msg("janitor: delete failed")
			continue
		}
		logger.Info().Str("collection", name).Bool("deleted", deleted).Msg("janitor: dropped stale temp collection")
	}
}
