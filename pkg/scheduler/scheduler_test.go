package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2flows/churn-agent/pkg/models"
)

type fakeExecutor struct {
	mu       sync.Mutex
	triggers []string
	err      error
}

func (f *fakeExecutor) Run(ctx context.Context, trigger string) (*models.ScoringRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ScoringRun{ID: "run-1", Status: models.RunStatusCompleted, TriggeredBy: trigger}, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

func (f *fakeExecutor) lastTrigger() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.triggers) == 0 {
		return ""
	}
	return f.triggers[len(f.triggers)-1]
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(&fakeExecutor{}, nil, nil, Config{}, testLogger())

	assert.Equal(t, DefaultInterval, s.config.Interval)
	assert.Equal(t, DefaultLockTTL, s.config.LockTTL)
	assert.Equal(t, DefaultRunWaitTimeout, s.config.RunWaitTimeout)
	assert.Equal(t, DefaultConsumeBlock, s.config.ConsumeBlock)
	assert.Equal(t, DefaultRunStream, s.config.RunStream)
	assert.Equal(t, DefaultConsumerGroup, s.config.ConsumerGroup)
	assert.NotEmpty(t, s.config.ConsumerName)
}

func TestNewScheduler_KeepsExplicitConfig(t *testing.T) {
	config := Config{
		Interval:      time.Hour,
		LockTTL:       time.Minute,
		RunStream:     "custom:runs",
		ConsumerGroup: "custom-group",
		ConsumerName:  "scheduler-1",
	}

	s := NewScheduler(&fakeExecutor{}, nil, nil, config, testLogger())

	assert.Equal(t, time.Hour, s.config.Interval)
	assert.Equal(t, time.Minute, s.config.LockTTL)
	assert.Equal(t, "custom:runs", s.config.RunStream)
	assert.Equal(t, "custom-group", s.config.ConsumerGroup)
	assert.Equal(t, "scheduler-1", s.config.ConsumerName)
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	executor := &fakeExecutor{}
	s := NewScheduler(executor, nil, nil, Config{Interval: time.Hour}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return executor.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.RunTriggerSchedule, executor.lastTrigger())
}

func TestScheduler_RunsOnEveryTick(t *testing.T) {
	executor := &fakeExecutor{}
	s := NewScheduler(executor, nil, nil, Config{Interval: 20 * time.Millisecond}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	assert.Eventually(t, func() bool { return executor.count() >= 3 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewScheduler(&fakeExecutor{}, nil, nil, Config{Interval: time.Hour}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := NewScheduler(&fakeExecutor{}, nil, nil, Config{}, testLogger())

	assert.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestScheduler_SurvivesExecutorFailure(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("pipeline exploded")}
	s := NewScheduler(executor, nil, nil, Config{Interval: 20 * time.Millisecond}, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer stopScheduler(t, s)

	// Failed passes are logged and the loop keeps ticking
	assert.Eventually(t, func() bool { return executor.count() >= 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, s.IsRunning())
}

func stopScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
