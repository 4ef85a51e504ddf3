package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/markdave123-py/studybuddy/internal/logging"
)

// Job is one scheduled unit of work. It receives the scheduler's context.
type Job func(ctx context.Context)

// Schedule yields the next fire time strictly after now.
type Schedule interface {
	Next(now time.Time) time.Time
}

// Daily fires once a day at Hour:Minute in Location.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
}

func (d Daily) Next(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

// ParseClock reads "HH:MM" into a Daily schedule.
func ParseClock(clock string, loc *time.Location) (Daily, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return Daily{}, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	return Daily{Hour: t.Hour(), Minute: t.Minute(), Location: loc}, nil
}

type entry struct {
	name     string
	schedule Schedule
	delay    time.Duration // one-shot when schedule is nil
	job      Job
}

// Scheduler runs named jobs on their schedules until Stop or ctx cancellation.
// A job never overlaps with itself; a fire time reached while it still runs is skipped.
type Scheduler struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries []entry
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logging.OrDefault(logger).With("component", "scheduler"),
		now:    time.Now,
	}
}

// Every registers a recurring job. Must be called before Start.
func (s *Scheduler) Every(name string, schedule Schedule, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{name: name, schedule: schedule, job: job})
}

// After registers a job that runs once, delay after Start.
func (s *Scheduler) After(name string, delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{name: name, delay: delay, job: job})
}

// Start launches one goroutine per registered job. A second Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e, s.stop)
	}
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop halts all loops and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.stop = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, e entry, stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		wait := e.delay
		if e.schedule != nil {
			next := e.schedule.Next(s.now())
			wait = next.Sub(s.now())
			s.logger.Info("next run", "job", e.name, "at", next)
		}

		timer := time.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.run(ctx, e)
		if e.schedule == nil {
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", e.name, "panic", r)
		}
	}()
	s.logger.Info("job started", "job", e.name)
	e.job(ctx)
	s.logger.Info("job finished", "job", e.name, "took", s.now().Sub(start))
}
