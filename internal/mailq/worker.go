// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package mailq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/ducpham/sentra/internal/platform/constants"
)

// Worker drains the mail queue and delivers jobs over the configured [Mailer].
//
// # Concurrency
//
// One worker goroutine per process. BRPOP makes multiple worker processes
// safe to run side by side; Redis hands each job to exactly one of them.
type Worker struct {
	client *redis.Client
	mailer Mailer
	logger *slog.Logger
}

// NewWorker creates a Worker. The Redis client must be a blocking client
// (no read timeout) or BRPOP will spuriously error under low traffic.
func NewWorker(client *redis.Client, mailer Mailer, logger *slog.Logger) *Worker {
	return &Worker{client: client, mailer: mailer, logger: logger}
}

// Run blocks and processes jobs until the context is cancelled.
func (worker *Worker) Run(ctx context.Context) error {
	worker.logger.Info("mail_worker_started", slog.String("queue", constants.RedisKeyMailQueue))

	for {
		if err := ctx.Err(); err != nil {
			worker.logger.Info("mail_worker_stopped")
			return nil
		}

		// A finite poll timeout keeps the loop responsive to cancellation.
		result, err := worker.client.BRPop(ctx, 5*time.Second, constants.RedisKeyMailQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				worker.logger.Info("mail_worker_stopped")
				return nil
			}
			worker.logger.Error("mail_worker_pop_failed", slog.Any("error", err))
			time.Sleep(time.Second)
			continue
		}

		// BRPOP answers [key, value].
		if len(result) != 2 {
			continue
		}

		worker.process(ctx, []byte(result[1]))
	}
}

// process decodes and delivers one job, dead-lettering on exhaustion.
func (worker *Worker) process(ctx context.Context, payload []byte) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		worker.logger.Error("mail_worker_decode_failed", slog.Any("error", err))
		worker.deadLetter(ctx, payload)
		return
	}

	if err := worker.deliver(ctx, &job); err != nil {
		worker.logger.Error("mail_delivery_exhausted",
			slog.String("type", string(job.Type)),
			slog.String("to", job.Email),
			slog.Int("attempts", job.Attempt),
			slog.Any("error", err),
		)
		worker.deadLetter(ctx, mustEncode(job))
		return
	}

	worker.logger.Info("mail_delivered",
		slog.String("type", string(job.Type)),
		slog.String("to", job.Email),
		slog.Int("attempts", job.Attempt),
	)
}

// deliver renders and sends one job with exponential backoff: the base delay
// doubles each retry until the attempt budget is spent.
func (worker *Worker) deliver(ctx context.Context, job *Job) error {
	message, err := BuildMessage(*job)
	if err != nil {
		// Unknown template; retrying cannot help.
		return err
	}

	backoff := retry.WithMaxRetries(constants.MailMaxAttempts-1, retry.NewExponential(constants.MailBackoffBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		job.Attempt++

		if err := worker.mailer.Send(message); err != nil {
			worker.logger.Warn("mail_delivery_attempt_failed",
				slog.String("to", job.Email),
				slog.Int("attempt", job.Attempt),
				slog.Any("error", err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// deadLetter parks an undeliverable payload for operator inspection.
func (worker *Worker) deadLetter(ctx context.Context, payload []byte) {
	if err := worker.client.LPush(ctx, constants.RedisKeyMailDead, payload).Err(); err != nil {
		worker.logger.Error("mail_dead_letter_failed", slog.Any("error", err))
	}
}

func mustEncode(job Job) []byte {
	payload, err := json.Marshal(job)
	if err != nil {
		return []byte(fmt.Sprintf(`{"type":%q,"email":%q}`, job.Type, job.Email))
	}
	return payload
}
