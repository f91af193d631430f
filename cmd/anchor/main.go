package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anchorhq/anchor/internal/pipeline"
	"github.com/anchorhq/anchor/internal/respond"
	"github.com/anchorhq/anchor/internal/scoring"
	"github.com/anchorhq/anchor/internal/store"
	"github.com/anchorhq/anchor/internal/stt"
	"github.com/anchorhq/anchor/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	st, err := store.Open(cfg.databaseURL)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	scorer := scoring.NewAdapter(scoring.NewOpenAIClient(cfg.openaiAPIKey, cfg.openaiScoreModel))
	responder := respond.NewResponder(respond.NewOpenAIGenerator(cfg.openaiAPIKey, cfg.openaiChatModel, cfg.systemPrompt))

	pipe := pipeline.New(pipeline.NewDB(st), scorer, responder, pipeline.Config{
		PolicyVersion: cfg.policyVersion,
		ModelVersion:  cfg.modelVersion,
		Baseline:      cfg.baseline,
	})

	var transcriber stt.Transcriber
	if cfg.sttURL != "" {
		sttClient := stt.NewClient(cfg.sttURL, cfg.sttPoolSize)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sttClient.Warmup(warmCtx); err != nil {
			slog.Warn("stt warmup", "error", err)
		}
		warmCancel()
		transcriber = sttClient
		slog.Info("stt enabled", "url", cfg.sttURL)
	}

	wsHandler := ws.NewHandler(pipe, cfg.maxConcurrentWS)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		pipe:          pipe,
		transcriber:   transcriber,
		wsHandler:     wsHandler,
		maxAudioBytes: cfg.maxAudioBytes,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("anchor starting", "addr", addr, "max_concurrent_ws", cfg.maxConcurrentWS)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("anchor stopped")
}
