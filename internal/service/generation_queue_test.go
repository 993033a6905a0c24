package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
	"github.com/noah-isme/sma-schedule-engine/pkg/jobs"
)

type scriptedGenerator struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	actors []models.ScopeProvider
}

func (g *scriptedGenerator) GenerateLessonsForSchedule(ctx context.Context, actor models.ScopeProvider, scheduleID string) (*models.GenerationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.actors = append(g.actors, actor)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.GenerationResult{ScheduleID: scheduleID, Created: 2, Total: 2}, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestGenerationQueueRetriesFailedRuns(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{appErrors.Clone(appErrors.ErrGenerationFailed, "boom")}}
	q := NewGenerationQueue(gen, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	jobID, err := q.EnqueueGeneration(adminActor, "sched-1")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.Eventually(t, func() bool { return gen.callCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, adminActor, gen.actors[0])
}

func TestGenerationQueueDoesNotRetryRejectedRuns(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{appErrors.Clone(appErrors.ErrNotFound, "schedule not found")}}
	q := NewGenerationQueue(gen, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.EnqueueGeneration(adminActor, "missing")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return gen.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, gen.callCount())
}

func TestGenerationQueueValidatesInput(t *testing.T) {
	q := NewGenerationQueue(&scriptedGenerator{}, jobs.QueueConfig{})
	_, err := q.EnqueueGeneration(adminActor, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = q.EnqueueGeneration(adminActor, "sched-1")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
