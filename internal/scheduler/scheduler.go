// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Entry describes one registered job
type Entry struct {
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
	Job      string    `json:"job"`
	Schedule string    `json:"schedule"`
}

// Scheduler manages background jobs.
//
// Each job runs on its own cron entry: a job never overlaps itself (a tick that
// arrives while the previous run is still going is skipped), while different
// jobs run independently of each other. A panicking job is recovered and logged.
type Scheduler struct {
	cron      *cron.Cron
	mu        sync.Mutex
	schedules map[cron.EntryID]registration
	log       zerolog.Logger
}

type registration struct {
	job      string
	schedule string
}

// New creates a new scheduler evaluating schedules in loc
func New(log zerolog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		schedules: make(map[cron.EntryID]registration),
		log:       log,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop cancels future ticks and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with a standard 5-field cron schedule
// Schedule examples:
//   - "*/5 * * * *"        - Every 5 minutes
//   - "0 * * * *"          - Every hour
//   - "0 1 * * *"          - 1 AM daily
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() {
		s.run(job)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.schedules[id] = registration{job: job.Name(), schedule: schedule}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

// Entries lists the registered jobs ordered by name
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.schedules))
	for _, e := range s.cron.Entries() {
		reg, ok := s.schedules[e.ID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Job:      reg.job,
			Schedule: reg.schedule,
			Next:     e.Next,
			Prev:     e.Prev,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Job < entries[j].Job })
	return entries
}

func (s *Scheduler) run(job Job) {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	start := time.Now()
	if err := job.Run(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("duration", time.Since(start)).
			Msg("Job failed")
		return
	}

	s.log.Debug().Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("Job completed")
}

// cronLogger adapts zerolog to cron.Logger.
// cron reports every wake-up through Info, so it is logged at debug level.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
