package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/logger"
)

// Job is a unit of background work. Run must return promptly once ctx is done.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job whose previous run is still
// in progress when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// New creates a scheduler whose schedules accept an optional seconds field
// and descriptors such as "@every 1m".
func New(log *zap.Logger) *Scheduler {
	log = logger.OrNop(log).With(zap.String("component", "scheduler"))
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{sugar: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: log,
	}
}

// AddJob registers job under schedule.
// Schedule examples:
//   - "@every 1m"
//   - "@hourly"
//   - "0 */5 * * * *"  every 5 minutes
//   - "0 30 9 * * MON-FRI"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.run(s.ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}
	s.logger.Info("Job registered", zap.String("job", job.Name()), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels the context of running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow executes job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.logger.Info("Running job immediately", zap.String("job", job.Name()))
	return job.Run(ctx)
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Debug("Running job", zap.String("job", job.Name()))
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Job failed", zap.String("job", job.Name()), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Debug("Job completed", zap.String("job", job.Name()), zap.Duration("elapsed", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
