// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the last known state of a registered job
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run"`
}

type registration struct {
	job      Job
	schedule string
	entry    cron.EntryID
	lastRun  *time.Time
	lastErr  string
	running  sync.Mutex
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	events *events.Manager
	log    zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*registration
}

// New creates a new scheduler. Schedules carry a leading seconds field.
func New(eventManager *events.Manager, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		events: eventManager,
		log:    log.With().Str("component", "scheduler").Logger(),
		jobs:   make(map[string]*registration),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 30 22 * * 1-5"    - 22:30 on weekdays
func (s *Scheduler) AddJob(schedule string, job Job) error {
	reg := &registration{job: job, schedule: schedule}

	id, err := s.cron.AddFunc(schedule, func() {
		s.execute(reg)
	})
	if err != nil {
		return err
	}
	reg.entry = id

	s.mu.Lock()
	s.jobs[job.Name()] = reg
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) (bool, error) {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return true, s.execute(reg)
}

// Status lists registered jobs sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, reg := range s.jobs {
		status := JobStatus{
			Name:      name,
			Schedule:  reg.schedule,
			LastRun:   reg.lastRun,
			LastError: reg.lastErr,
		}
		if next := s.cron.Entry(reg.entry).Next; !next.IsZero() {
			status.NextRun = &next
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// execute runs a job, skipping the run when the previous one is still going
func (s *Scheduler) execute(reg *registration) error {
	name := reg.job.Name()
	if !reg.running.TryLock() {
		s.log.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
		return nil
	}
	defer reg.running.Unlock()

	s.log.Debug().Str("job", name).Msg("Running job")
	start := time.Now()
	err := reg.job.Run()
	duration := time.Since(start)

	data := &events.JobCompletedData{Job: name, DurationMs: duration.Milliseconds()}
	s.mu.Lock()
	reg.lastRun = &start
	reg.lastErr = ""
	if err != nil {
		reg.lastErr = err.Error()
		data.Error = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", name).
			Msg("Job failed")
	} else {
		s.log.Debug().Str("job", name).Dur("duration_ms", duration).Msg("Job completed")
	}

	s.events.Emit("scheduler", data)
	return err
}
