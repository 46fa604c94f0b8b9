package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a recurring task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals until its context is cancelled.
type Scheduler struct {
	jobs   []Job
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Every adds a job. It must be called before Start.
func (s *Scheduler) Every(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

// Start launches one ticker goroutine per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runOnce(ctx, job)
				}
			}
		}()
		s.logger.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("scheduled job")
	}
}

// Wait blocks until every job goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("scheduled job failed")
		return
	}
	s.logger.Info().Str("job", job.Name).Dur("latency", time.Since(start)).Msg("scheduled job finished")
}
