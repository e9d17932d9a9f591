// Package runtime runs the engine's periodic maintenance jobs.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is one run of a maintenance job.
type JobFunc func(ctx context.Context) error

// JobStatus reports a registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	Runs     int       `json:"runs"`
}

type job struct {
	name     string
	schedule string
	run      JobFunc
	entry    cron.EntryID

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	runs    int
}

// Scheduler runs named jobs on cron schedules. A job never overlaps with
// itself; a tick that arrives while it is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	started bool
}

// NewScheduler creates a scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: l}
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger: l,
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
	}
}

// Add registers a job. An empty schedule leaves the job registered but
// unscheduled, so it can still be triggered with RunNow.
func (s *Scheduler) Add(name, schedule string, run JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, schedule: schedule, run: run}
	if schedule != "" {
		sched, err := ParseSchedule(schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		j.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(s.context(), j) }))
	}
	s.jobs[name] = j
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Registered job")
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start runs scheduled jobs until ctx is cancelled, then waits for running
// jobs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info().Int("jobs", len(s.Status())).Msg("Starting scheduler")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped: context cancelled")
}

// RunNow runs a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	return s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	start := time.Now()
	err := j.run(ctx)

	j.mu.Lock()
	j.lastRun = start
	j.lastErr = err
	j.runs++
	j.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Dur("duration", time.Since(start)).Msg("Job failed")
		return err
	}
	s.logger.Info().Str("job", j.name).Dur("duration", time.Since(start)).Msg("Job completed")
	return nil
}

// Status lists registered jobs sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		st := JobStatus{Name: j.name, Schedule: j.schedule}
		if j.entry != 0 {
			st.Next = s.cron.Entry(j.entry).Next
		}
		j.mu.Lock()
		st.LastRun = j.lastRun
		st.Runs = j.runs
		if j.lastErr != nil {
			st.LastErr = j.lastErr.Error()
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
