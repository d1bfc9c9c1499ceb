package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmeynard/screenline/internal/config"
	"github.com/lmeynard/screenline/internal/convai"
	"github.com/lmeynard/screenline/internal/httpapi"
	"github.com/lmeynard/screenline/internal/observability"
	"github.com/lmeynard/screenline/internal/store"
	"github.com/lmeynard/screenline/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("store: in-memory (set DATABASE_URL for postgres)")
	} else {
		log.Printf("store: postgres")
	}

	recordings, err := store.NewFSRecordingStore(cfg.RecordingsDir)
	if err != nil {
		log.Fatalf("recording store init failed: %v", err)
	}

	provider := convai.NewAPI(convai.APIConfig{
		APIKey:  cfg.ElevenLabsAPIKey,
		BaseURL: cfg.ElevenLabsBaseURL,
	})
	if cfg.ElevenLabsAPIKey == "" {
		log.Printf("warning: ELEVENLABS_API_KEY is not set, exchanges will fail at the provider")
	}

	var summarizer summary.Generator = summary.Noop{}
	if cfg.GeminiAPIKey != "" {
		g, err := summary.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("summarizer init failed: %v", err)
		}
		summarizer = g
		log.Printf("summarizer: gemini (%s)", cfg.GeminiModel)
	} else {
		log.Printf("summarizer: disabled (set GEMINI_API_KEY to enable)")
	}

	api := httpapi.New(cfg, st, recordings, provider, summarizer, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
