package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

type sweepStore interface {
	ExpireHolds(ctx context.Context, now time.Time) ([]string, error)
	StartSessions(ctx context.Context, now time.Time, loc *time.Location) ([]string, error)
	CompleteSessions(ctx context.Context, now time.Time, loc *time.Location) ([]string, error)
}

// SweeperService applies the time-driven reservation transitions. Every sweep
// is a single conditional update, so concurrent runs never double-apply.
type SweeperService struct {
	repo    sweepStore
	events  EventEmitter
	metrics *MetricsService
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewSweeperService instantiates SweeperService.
func NewSweeperService(repo sweepStore, events EventEmitter, metrics *MetricsService, logger *zap.Logger, loc *time.Location, now func() time.Time) *SweeperService {
	if events == nil {
		events = noopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &SweeperService{repo: repo, events: events, metrics: metrics, logger: logger, loc: loc, now: now}
}

// ExpireHolds moves PENDING reservations past their hold deadline to EXPIRED.
func (s *SweeperService) ExpireHolds(ctx context.Context) (*models.SweepResult, error) {
	return s.run(ctx, models.SweepExpireHolds, models.ReservationExpired, models.EventReservationExpired,
		func(now time.Time) ([]string, error) { return s.repo.ExpireHolds(ctx, now) })
}

// StartSessions moves CONFIRMED reservations whose start time passed to PROGRESS.
func (s *SweeperService) StartSessions(ctx context.Context) (*models.SweepResult, error) {
	return s.run(ctx, models.SweepStartSessions, models.ReservationProgress, "",
		func(now time.Time) ([]string, error) { return s.repo.StartSessions(ctx, now, s.loc) })
}

// CompleteSessions moves reservations whose end time passed to COMPLETED.
func (s *SweeperService) CompleteSessions(ctx context.Context) (*models.SweepResult, error) {
	return s.run(ctx, models.SweepCompleteSessions, models.ReservationCompleted, models.EventReservationCompleted,
		func(now time.Time) ([]string, error) { return s.repo.CompleteSessions(ctx, now, s.loc) })
}

// Run executes the sweep called name.
func (s *SweeperService) Run(ctx context.Context, name models.SweepName) (*models.SweepResult, error) {
	switch name {
	case models.SweepExpireHolds:
		return s.ExpireHolds(ctx)
	case models.SweepStartSessions:
		return s.StartSessions(ctx)
	case models.SweepCompleteSessions:
		return s.CompleteSessions(ctx)
	default:
		return nil, fmt.Errorf("unknown sweep %q", name)
	}
}

func (s *SweeperService) run(
	ctx context.Context,
	name models.SweepName,
	target models.ReservationStatus,
	eventType models.EventType,
	apply func(now time.Time) ([]string, error),
) (*models.SweepResult, error) {
	started := time.Now()
	now := s.now()
	ids, err := apply(now)
	elapsed := time.Since(started)
	s.metrics.ObserveSweep(name, len(ids), elapsed, err)
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", name, err)
	}

	result := &models.SweepResult{Name: name, Affected: len(ids), IDs: ids, RanAt: now.UTC(), Duration: elapsed}
	if len(ids) == 0 {
		s.logger.Debug("sweep finished", zap.String("sweep", string(name)))
		return result, nil
	}

	s.metrics.RecordTransition(target, string(name), len(ids))
	s.logger.Info("sweep finished",
		zap.String("sweep", string(name)),
		zap.Int("affected", len(ids)),
		zap.Duration("duration", elapsed),
	)
	if eventType != "" {
		for _, id := range ids {
			s.events.Emit(ctx, newReservationEvent(eventType, id, nil))
		}
	}
	return result, nil
}

// SchedulerConfig sets each sweep's cadence. A non-positive interval disables
// that sweep.
type SchedulerConfig struct {
	ExpireInterval   time.Duration
	StartInterval    time.Duration
	CompleteInterval time.Duration
	Timeout          time.Duration
	RunOnStart       bool
}

type sweepRunner interface {
	Run(ctx context.Context, name models.SweepName) (*models.SweepResult, error)
}

// Scheduler drives each sweep on its own ticker.
type Scheduler struct {
	sweeper sweepRunner
	cfg     SchedulerConfig
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler builds a Scheduler.
func NewScheduler(sweeper sweepRunner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Scheduler{sweeper: sweeper, cfg: cfg, logger: logger}
}

// Start launches one goroutine per enabled sweep. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for name, interval := range map[models.SweepName]time.Duration{
		models.SweepExpireHolds:      s.cfg.ExpireInterval,
		models.SweepStartSessions:    s.cfg.StartInterval,
		models.SweepCompleteSessions: s.cfg.CompleteInterval,
	} {
		if interval <= 0 {
			s.logger.Info("sweep disabled", zap.String("sweep", string(name)))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, name, interval)
	}
}

// Stop cancels every loop and waits for in-flight sweeps.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
}

// RunNow executes one sweep synchronously with the configured timeout.
func (s *Scheduler) RunNow(ctx context.Context, name models.SweepName) (*models.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.sweeper.Run(ctx, name)
}

func (s *Scheduler) loop(ctx context.Context, name models.SweepName, interval time.Duration) {
	defer s.wg.Done()
	if s.cfg.RunOnStart {
		s.tick(ctx, name)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, name)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, name models.SweepName) {
	if _, err := s.RunNow(ctx, name); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sweep failed", zap.String("sweep", string(name)), zap.Error(err))
	}
}
