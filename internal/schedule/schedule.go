package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/MikeSquared-Agency/casi/internal/config"
)

// Job is one named task. Spec is a Go duration or a five-field cron
// expression; "off" or "" disables it.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron   gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu    sync.Mutex
	names []string
}

func New(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: s, ctx: ctx, cancel: cancel, logger: logger}, nil
}

// Add registers job. It reports false when the job's spec disables it.
// Runs never overlap; a tick that arrives while the previous run is still
// going is skipped.
func (s *Scheduler) Add(job Job) (bool, error) {
	every, expr, err := config.ParseSchedule(job.Spec)
	if err != nil {
		return false, fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	var def gocron.JobDefinition
	switch {
	case every > 0:
		def = gocron.DurationJob(every)
	case expr != "":
		def = gocron.CronJob(expr, false)
	default:
		s.logger.Info("job disabled", "job", job.Name)
		return false, nil
	}

	if _, err := s.cron.NewJob(def,
		gocron.NewTask(func() { s.run(job) }),
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return false, fmt.Errorf("schedule %s: %w", job.Name, err)
	}

	s.mu.Lock()
	s.names = append(s.names, job.Name)
	s.mu.Unlock()
	s.logger.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	return true, nil
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", job.Name, "panic", fmt.Sprint(r))
		}
	}()
	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}

// Jobs lists the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}
