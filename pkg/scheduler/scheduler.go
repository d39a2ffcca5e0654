// Package scheduler drives scoring passes: a ticker for scheduled passes and
// a Redis Stream consumer for manual run requests. Both paths funnel through
// one distributed lock, so replicas never execute concurrent passes.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/redis"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

var (
	// ErrSchedulerStopped is returned when the scheduler is stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultInterval is the default time between scheduled scoring passes
	DefaultInterval = 24 * time.Hour

	// DefaultLockTTL is the default TTL for the run lock
	DefaultLockTTL = 15 * time.Minute

	// DefaultRunWaitTimeout is how long a manual run request waits for the
	// run lock before being dropped
	DefaultRunWaitTimeout = 2 * time.Minute

	// DefaultConsumeBlock is how long a stream read blocks waiting for
	// manual run requests
	DefaultConsumeBlock = 5 * time.Second

	// DefaultRunStream is the Redis Stream carrying manual run requests
	DefaultRunStream = "churn:runs"

	// DefaultConsumerGroup is the consumer group reading the run stream
	DefaultConsumerGroup = "churn-scheduler"

	// RunLockKey is the lock key serializing scoring passes
	RunLockKey = "scheduler:run"
)

// RunExecutor executes one scoring pass. *pipeline.Runner satisfies it.
type RunExecutor interface {
	Run(ctx context.Context, trigger string) (*models.ScoringRun, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// Interval is the time between scheduled scoring passes
	Interval time.Duration

	// LockTTL is how long one pass may hold the run lock
	LockTTL time.Duration

	// RunWaitTimeout is how long a manual request waits for the run lock
	RunWaitTimeout time.Duration

	// ConsumeBlock is how long a stream read blocks per poll
	ConsumeBlock time.Duration

	// RunStream is the Redis Stream carrying manual run requests
	RunStream string

	// ConsumerGroup is the consumer group reading the run stream
	ConsumerGroup string

	// ConsumerName identifies this instance within the consumer group
	ConsumerName string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Interval:       DefaultInterval,
		LockTTL:        DefaultLockTTL,
		RunWaitTimeout: DefaultRunWaitTimeout,
		ConsumeBlock:   DefaultConsumeBlock,
		RunStream:      DefaultRunStream,
		ConsumerGroup:  DefaultConsumerGroup,
	}
}

// Scheduler triggers scoring passes on a schedule and on manual request
type Scheduler struct {
	executor RunExecutor
	streams  *redis.Streams
	locker   *redis.Locker
	config   Config
	logger   ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. streams and locker may be nil when
// Redis is disabled; manual requests are then unavailable and passes run
// unlocked, which is only safe with a single replica.
func NewScheduler(
	executor RunExecutor,
	streams *redis.Streams,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.RunWaitTimeout <= 0 {
		config.RunWaitTimeout = DefaultRunWaitTimeout
	}
	if config.ConsumeBlock <= 0 {
		config.ConsumeBlock = DefaultConsumeBlock
	}
	if config.RunStream == "" {
		config.RunStream = DefaultRunStream
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = DefaultConsumerGroup
	}
	if config.ConsumerName == "" {
		config.ConsumerName = "scheduler-" + uuid.New().String()
	}

	return &Scheduler{
		executor: executor,
		streams:  streams,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler loops
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Scheduler.Start")
	defer span.End()

	if s.streams != nil {
		if err := s.streams.CreateConsumerGroup(ctx, s.config.RunStream, s.config.ConsumerGroup); err != nil {
			return err
		}
	}

	s.logger.WithContext(ctx).Infof("Starting scheduler: interval=%s run_stream=%s consumer=%s",
		s.config.Interval, s.config.RunStream, s.config.ConsumerName)

	go s.loops(ctx)

	s.logger.WithContext(ctx).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	// Wait for graceful shutdown with timeout
	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loops(ctx context.Context) {
	defer close(s.stoppedC)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.scheduleLoop(ctx)
	}()

	if s.streams != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consumeLoop(ctx)
		}()
	}

	wg.Wait()
}

// scheduleLoop fires a pass immediately on start and then on every tick
func (s *Scheduler) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeScheduled(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler tick loop stopping")
			return
		case <-ticker.C:
			s.executeScheduled(ctx)
		}
	}
}

// consumeLoop reads manual run requests off the stream
func (s *Scheduler) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler consume loop stopping")
			return
		default:
		}

		messages, err := s.streams.Consume(ctx, s.config.RunStream, s.config.ConsumerGroup, s.config.ConsumerName, 1, s.config.ConsumeBlock)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to read run requests")
			select {
			case <-s.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, message := range messages {
			s.executeRequested(ctx, message)

			if err := s.streams.Ack(ctx, s.config.RunStream, s.config.ConsumerGroup, message.ID); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack run request %s", message.ID)
			}
		}
	}
}

// executeScheduled runs a scheduled pass. A replica that loses the lock race
// skips this tick; the schedule brings the next one.
func (s *Scheduler) executeScheduled(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.executeScheduled")
	defer span.End()

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, RunLockKey, s.config.LockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				s.logger.WithContext(ctx).Info("Another replica holds the run lock, skipping scheduled pass")
				return
			}
			s.logger.WithContext(ctx).WithError(err).Error("Failed to acquire run lock")
			return
		}
		defer lock.Release(ctx)
	}

	s.executePass(ctx, models.RunTriggerSchedule)
}

// executeRequested runs a manually requested pass. Requests wait for the run
// lock so a request arriving mid-pass executes right after, instead of
// interleaving with it.
func (s *Scheduler) executeRequested(ctx context.Context, message redis.StreamMessage) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.executeRequested")
	defer span.End()

	var request redis.RunRequestMessage
	if payload, err := json.Marshal(message.Payload); err == nil {
		if err := json.Unmarshal(payload, &request); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Malformed run request %s, dropping", message.ID)
			return
		}
	}

	trigger := request.Trigger
	if trigger == "" {
		trigger = models.RunTriggerAPI
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":   request.ID,
		"requested_by": request.RequestedBy,
		"trigger":      trigger,
	}).Info("Processing manual run request")

	if s.locker != nil {
		lock, err := s.locker.TryAcquire(ctx, RunLockKey, s.config.LockTTL, s.config.RunWaitTimeout)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Run request %s could not get the run lock, dropping", request.ID)
			return
		}
		defer lock.Release(ctx)
	}

	s.executePass(ctx, trigger)
}

func (s *Scheduler) executePass(ctx context.Context, trigger string) {
	start := time.Now()

	scoringRun, err := s.executor.Run(ctx, trigger)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Scoring pass failed: trigger=%s duration=%s",
			trigger, time.Since(start))
		return
	}

	s.logger.WithContext(ctx).Infof("Scoring pass completed: run_id=%s trigger=%s pos=%d duration=%s",
		scoringRun.ID, trigger, scoringRun.PosCount, time.Since(start))
}
