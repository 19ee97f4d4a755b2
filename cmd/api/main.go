package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"medride/internal/app"
	"medride/internal/config"
	"medride/internal/lib/logger"
	"medride/internal/lib/sl"

	"github.com/joho/godotenv"
)

func main() {
	//.envがあれば読む（本番は環境変数だけ）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env, cfg.LogLevel, cfg.Secrets())
	log.Info("starting medride auth api",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Database.Driver),
		slog.String("otp_store", cfg.OTP.Store),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("failed to init app", sl.Err(err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server stopped", sl.Err(err))
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down cleanly", sl.Err(err))
		exitCode = 1
	}

	log.Info("medride auth api stopped")
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
