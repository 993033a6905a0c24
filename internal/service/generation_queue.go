package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
	"github.com/noah-isme/sma-schedule-engine/pkg/jobs"
)

const generationJobType = "generate_lessons"

type scheduleLessonGenerator interface {
	GenerateLessonsForSchedule(ctx context.Context, actor models.ScopeProvider, scheduleID string) (*models.GenerationResult, error)
}

type generationPayload struct {
	actor      models.Actor
	scheduleID string
}

// GenerationQueue runs lesson generation in the background. At most one run per schedule is queued
// at a time; failed runs are retried since generation is idempotent.
type GenerationQueue struct {
	queue     *jobs.Queue
	generator scheduleLessonGenerator
	logger    *zap.Logger
}

// NewGenerationQueue constructs the queue. Call Start before enqueueing.
func NewGenerationQueue(generator scheduleLessonGenerator, cfg jobs.QueueConfig) *GenerationQueue {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	q := &GenerationQueue{generator: generator, logger: cfg.Logger}
	q.queue = jobs.NewQueue("lesson-generation", q.handle, cfg)
	return q
}

// Start launches the workers.
func (q *GenerationQueue) Start(ctx context.Context) { q.queue.Start(ctx) }

// Stop drains the workers.
func (q *GenerationQueue) Stop() { q.queue.Stop() }

// EnqueueGeneration schedules generation for a schedule and returns the job id.
func (q *GenerationQueue) EnqueueGeneration(actor models.Actor, scheduleID string) (string, error) {
	if scheduleID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "schedule id is required")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Key:     scheduleID,
		Type:    generationJobType,
		Payload: generationPayload{actor: actor, scheduleID: scheduleID},
	}
	if err := q.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return "", appErrors.Clone(appErrors.ErrConflict, "generation already queued for schedule")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "generation queue unavailable")
	}
	return job.ID, nil
}

func (q *GenerationQueue) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(generationPayload)
	if !ok {
		q.logger.Error("unexpected generation payload", zap.String("job_id", job.ID))
		return nil
	}
	result, err := q.generator.GenerateLessonsForSchedule(ctx, payload.actor, payload.scheduleID)
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status < http.StatusInternalServerError {
			q.logger.Warn("generation job rejected",
				zap.String("job_id", job.ID),
				zap.String("schedule_id", payload.scheduleID),
				zap.String("code", appErr.Code),
			)
			return nil
		}
		return fmt.Errorf("generate lessons for %s: %w", payload.scheduleID, err)
	}
	q.logger.Info("generation job finished",
		zap.String("job_id", job.ID),
		zap.String("schedule_id", payload.scheduleID),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
	)
	return nil
}
