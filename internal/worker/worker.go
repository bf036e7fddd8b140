package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Leela143-143/MUN/pkg/queue"
)

// LogoDeleter removes a logo blob from the logo bucket.
type LogoDeleter interface {
	DeleteLogo(ctx context.Context, key string) error
}

// JobQueue is the queue surface the worker loop consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// LogoCleaner deletes superseded community logo blobs from S3. Deletion is
// best-effort: failures are retried a bounded number of times, then
// dead-lettered, and never block the request that replaced the logo.
type LogoCleaner struct {
	s3     LogoDeleter
	queue  JobQueue
	logger *zap.Logger
}

// NewLogoCleaner creates a logo cleanup processor.
func NewLogoCleaner(s3 LogoDeleter, q JobQueue, logger *zap.Logger) *LogoCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogoCleaner{s3: s3, queue: q, logger: logger}
}

// Process executes one logo deletion job.
func (p *LogoCleaner) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeLogoDelete {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.LogoDeletePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.Key == "" {
		return nil
	}

	if err := p.s3.DeleteLogo(ctx, payload.Key); err != nil {
		return fmt.Errorf("delete logo: %w", err)
	}
	p.logger.Info("superseded logo deleted",
		zap.String("community_id", payload.CommunityID.String()), zap.String("key", payload.Key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Returns when
// ctx is cancelled.
func (p *LogoCleaner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("logo cleanup worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("logo cleanup worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.pause(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.pause(ctx, queue.RetryBackoff)
			continue
		}
	}
}

// pause sleeps for d but wakes immediately on cancellation.
func (p *LogoCleaner) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
