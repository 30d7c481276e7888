package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/simple-signedurl/internal/app"
	"github.com/tendant/simple-signedurl/pkg/signedurl/config"
)

func main() {
	configFlag := flag.String("config", "", "Optional config file (yaml, json, toml or env)")
	usageFlag := flag.Bool("env-help", false, "Print the environment variables and exit")
	flag.Parse()

	if *usageFlag {
		fmt.Println(config.Usage())
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stderr, cfg.Server)
	slog.SetDefault(logger)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Mount("/", a.Handler().Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Signed URL service listening", "port", cfg.Server.Port,
			"client_email", a.Key.ClientEmail(), "hmac", a.HMAC != nil, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
	slog.Info("Server stopped")
}
