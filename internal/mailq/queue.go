// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

/*
Package mailq implements the asynchronous email pipeline.

Jobs are serialized as JSON onto a Redis list; the API process only ever
enqueues (LPUSH), and a separate worker binary drains the list (BRPOP) and
delivers over SMTP with exponential backoff. Exhausted jobs are parked on a
dead-letter list for operator inspection.

# Delivery Semantics

At-least-once. A worker crash between BRPOP and delivery loses at most the
job it was holding; both mail classes (verification, reset) are safe to
re-request by the user, so the pipeline prefers simplicity over exactly-once
machinery.
*/
package mailq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ducpham/sentra/internal/platform/constants"
)

// JobType discriminates the email templates.
type JobType string

const (
	JobVerifyEmail    JobType = "verify-email"
	JobForgotPassword JobType = "forgot-password"
)

// Job is one unit of outbound email work.
type Job struct {
	Type     JobType `json:"type"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Link     string  `json:"link"`

	// Attempt counts deliveries already tried, for dead-letter forensics.
	Attempt int `json:"attempt"`
}

// Producer enqueues email jobs from the API process.
type Producer struct {
	client *redis.Client
}

// NewProducer creates a Producer on the given Redis client.
func NewProducer(client *redis.Client) *Producer {
	return &Producer{client: client}
}

// Enqueue pushes a job onto the mail queue.
func (producer *Producer) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("mailq_encode_failed: %w", err)
	}

	if err := producer.client.LPush(ctx, constants.RedisKeyMailQueue, payload).Err(); err != nil {
		return fmt.Errorf("mailq_enqueue_failed: %w", err)
	}

	return nil
}

// ScheduleVerificationEmail enqueues the post-signup verification mail.
func (producer *Producer) ScheduleVerificationEmail(ctx context.Context, email, username, link string) error {
	return producer.Enqueue(ctx, Job{
		Type:     JobVerifyEmail,
		Email:    email,
		Username: username,
		Link:     link,
	})
}

// ScheduleResetEmail enqueues the password reset mail.
func (producer *Producer) ScheduleResetEmail(ctx context.Context, email, username, link string) error {
	return producer.Enqueue(ctx, Job{
		Type:     JobForgotPassword,
		Email:    email,
		Username: username,
		Link:     link,
	})
}
