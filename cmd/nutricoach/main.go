// cmd/nutricoach/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutricoach/config"
	"nutricoach/internal/auth"
	"nutricoach/internal/bot"
	"nutricoach/internal/gateway"
	"nutricoach/internal/gpt"
	"nutricoach/internal/kv"
	"nutricoach/internal/server"
	"nutricoach/internal/session"
	"nutricoach/internal/store"
	"nutricoach/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatalw("Failed to load config", "error", err)
	}

	l := logger.New(cfg.Log.Level)
	if cfg.Log.Development {
		l = logger.NewDevelopment(cfg.Log.Level)
	}
	defer l.Sync()
	l.Infow("Starting NutriCoach...")

	if err := cfg.Validate(); err != nil {
		l.Fatalw("Invalid configuration", "error", err)
	}

	// Local key/value storage backs the user database and the session
	var local kv.Store = kv.NewMemory()
	if cfg.KV.Path != "" {
		local, err = kv.NewFile(cfg.KV.Path)
		if err != nil {
			l.Fatalw("Failed to open key/value file", "error", err, "path", cfg.KV.Path)
		}
	}

	// History store, retried while the database comes up
	var history store.HistoryStore
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		history, err = store.Open(context.Background(), cfg.Store)
		if err == nil {
			break
		}
		l.Errorw("Failed to open history store, retrying...", "error", err, "driver", cfg.Store.Driver)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if history == nil {
		l.Fatalw("Failed to open history store after multiple attempts", "error", err)
	}
	defer history.Close()

	gptClient := gpt.NewClient(cfg.AI.APIKey).
		WithModel(cfg.AI.Model).
		WithBaseURL(cfg.AI.BaseURL).
		WithLimits(cfg.AI.MaxTokens, cfg.AI.Temperature).
		WithTimeout(cfg.AI.RequestTimeout)

	gw := gateway.New(gptClient, history, l, gateway.WithHistoryDelay(cfg.Gateway.HistoryDelay))

	var verifier auth.PasswordVerifier = auth.AcceptAll{}
	if cfg.Auth.VerifyPasswords {
		verifier = auth.NewBcryptVerifier(local)
	}
	authenticator := auth.NewMock(local, verifier, auth.Latency{
		Min:    cfg.Auth.MinLatency,
		Max:    cfg.Auth.MaxLatency,
		Google: cfg.Auth.GoogleDelay,
	}, l)

	sessions := session.NewManager(local, authenticator, gw, l)
	if _, err := sessions.Restore(context.Background()); err != nil {
		l.Errorw("Failed to restore session", "error", err)
	}

	httpServer := server.NewServer(server.Options{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, gw, sessions, server.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), l)
	go func() {
		l.Infow("Starting HTTP server...", "port", cfg.Server.Port)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var telegramBot *bot.TelegramBot
	if cfg.Telegram.Token != "" {
		telegramBot, err = bot.NewTelegramBot(cfg.Telegram.Token, gw, sessions, l)
		if err != nil {
			l.Fatalw("Failed to create Telegram bot", "error", err)
		}
		if err := telegramBot.Start(ctx); err != nil {
			l.Fatalw("Failed to start Telegram bot", "error", err)
		}
		l.Infow("Telegram bot started successfully")
	}

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Infow("Shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}
	if telegramBot != nil {
		if err := telegramBot.Stop(shutdownCtx); err != nil {
			l.Errorw("Error during bot shutdown", "error", err)
		}
	}

	l.Infow("Stopped successfully")
}
