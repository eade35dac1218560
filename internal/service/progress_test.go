package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertd/convertd/internal/adapter/storage/memory"
	"github.com/convertd/convertd/internal/domain"
)

func TestProgressTracker_Set(t *testing.T) {
	store := memory.NewStore()
	bus := NewEventBus()
	tracker := NewProgressTracker(store, bus)

	job := newTestJob(t, store)
	_, err := store.Update(job.ID, func(j *domain.Job) { j.MarkProcessing() })
	require.NoError(t, err)

	ch := bus.Subscribe(job.ID)
	defer bus.Unsubscribe(job.ID, ch)

	tracker.Set(job.ID, 55, "halfway")

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.Progress)
	assert.Equal(t, "halfway", got.Message)

	ev := <-ch
	assert.Equal(t, "progress", ev.Type)
	assert.Equal(t, 55, ev.Progress)
}

func TestProgressTracker_TerminalJobUntouched(t *testing.T) {
	store := memory.NewStore()
	tracker := NewProgressTracker(store, nil)

	job := newTestJob(t, store)
	_, err := store.Update(job.ID, func(j *domain.Job) {
		j.MarkDone(&domain.Artifact{Path: "/tmp/out"})
	})
	require.NoError(t, err)

	tracker.Set(job.ID, 10, "late update")

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress, "terminal progress must not regress")
	assert.Equal(t, domain.JobStatusDone, got.Status)
}

func TestProgressTracker_EvictedJobIgnored(t *testing.T) {
	store := memory.NewStore()
	tracker := NewProgressTracker(store, nil)

	// A stale worker reporting into a gone job is a no-op.
	tracker.Set("gone", 50, "late")
}

func TestProgressTracker_Func(t *testing.T) {
	store := memory.NewStore()
	tracker := NewProgressTracker(store, nil)

	job := newTestJob(t, store)
	_, err := store.Update(job.ID, func(j *domain.Job) { j.MarkProcessing() })
	require.NoError(t, err)

	fn := tracker.Func(job.ID)
	fn(150, "clamped")

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, got.Progress, "a running job never reports 100")
}
