// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

// Command mailworker drains the Redis mail queue and delivers email over SMTP.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to Redis with a blocking client (BRPOP needs no read timeout).
//  4. Run the worker loop until SIGTERM/SIGINT.
//
// The worker is a separate process so mail throughput and API latency never
// compete; run as many replicas as delivery volume requires.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducpham/sentra/internal/mailq"
	"github.com/ducpham/sentra/internal/platform/config"
	"github.com/ducpham/sentra/internal/platform/constants"
	redisstore "github.com/ducpham/sentra/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log := rawLog.With(slog.String("app", constants.AppName+"-mailworker"))
	slog.SetDefault(log)

	log.Info("[Sentra] mailworker_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	// ── 3. Redis ──────────────────────────────────────────────────────────
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	rdb, err := redisstore.NewBlockingClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 4. Worker Loop ────────────────────────────────────────────────────
	mailer := mailq.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
	worker := mailq.NewWorker(rdb, mailer, log)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := worker.Run(runCtx); err != nil {
		log.Error("worker terminated", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("mailworker stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
