package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job описывает периодическую задачу.
type Job func(ctx context.Context) error

type namedJob struct {
	name string
	run  Job
}

// Scheduler запускает задачи с фиксированным интервалом.
type Scheduler struct {
	interval time.Duration
	logger   *zap.Logger
	jobs     []namedJob
	wg       sync.WaitGroup
}

// NewScheduler создает scheduler с заданным интервалом.
func NewScheduler(interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{interval: interval, logger: logger}
}

// Add добавляет задачу в расписание.
func (s *Scheduler) Add(name string, job Job) {
	s.jobs = append(s.jobs, namedJob{name: name, run: job})
}

// Start блокируется до отмены контекста; ждет завершения запущенных задач.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			for _, job := range s.jobs {
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					if err := job.run(ctx); err != nil {
						s.logger.Warn("scheduled job failed", zap.String("job", job.name), zap.Error(err))
					}
				}()
			}
		}
	}
}
