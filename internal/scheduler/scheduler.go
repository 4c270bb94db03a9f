// Package scheduler runs the periodic maintenance jobs of the server.
package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusScheduled JobStatus = "scheduled"
)

// JobFunc is the work of a job.
type JobFunc func(ctx context.Context) error

// Job describes a job to schedule.
type Job struct {
	ID          string
	Name        string
	Description string
	// Schedule is the human readable form of Definition.
	Schedule   string
	Definition gocron.JobDefinition
	Run        JobFunc
	// Singleton jobs never overlap, a run due while the previous one is still going is rescheduled.
	Singleton  bool
	RunOnStart bool
}

// JobInfo is the state of a scheduled job.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      JobStatus `json:"status"`
	LastRun     time.Time `json:"lastRun"`
	NextRun     time.Time `json:"nextRun"`
	Schedule    string    `json:"schedule"`
	Enabled     bool      `json:"enabled"`
	RunCount    int       `json:"runCount"`
	ErrorCount  int       `json:"errorCount"`
	LastError   string    `json:"lastError,omitempty"`
	Singleton   bool      `json:"singleton"`
}

type entry struct {
	info       JobInfo
	job        gocron.Job
	runOnStart bool
}

// Scheduler manages scheduled jobs.
type Scheduler struct {
	gocron gocron.Scheduler
	log    *log.Logger

	mu   sync.RWMutex
	jobs map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler.
func New() (*Scheduler, error) {
	l := log.Default().WithPrefix("scheduler")
	gocronScheduler, err := gocron.NewScheduler(gocron.WithLogger(newLogger(l)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron: gocronScheduler,
		log:    l,
		jobs:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start starts the scheduler and triggers the jobs marked to run on start.
func (s *Scheduler) Start() {
	s.log.Info("Starting job scheduler")
	s.gocron.Start()

	var immediate []string
	s.mu.Lock()
	for id, e := range s.jobs {
		if nextRun, err := e.job.NextRun(); err == nil {
			e.info.NextRun = nextRun
		} else {
			s.log.Warn("Failed to get next run time for job", "id", id, "error", err)
		}
		if e.runOnStart {
			immediate = append(immediate, id)
		}
	}
	s.mu.Unlock()

	for _, id := range immediate {
		if err := s.RunJobNow(id); err != nil {
			s.log.Error("Failed to run job after start", "id", id, "error", err)
		}
	}
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.log.Info("Stopping job scheduler")
	s.cancel()
	return s.gocron.Shutdown()
}

// Add schedules a job.
func (s *Scheduler) Add(job Job) error {
	if job.ID == "" || job.Run == nil || job.Definition == nil {
		return fmt.Errorf("job %q is incomplete", job.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	var opts []gocron.JobOption
	opts = append(opts, gocron.WithName(job.ID))
	if job.Singleton {
		opts = append(opts, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	}

	gj, err := s.gocron.NewJob(job.Definition, gocron.NewTask(s.wrap(job.ID, job.Run)), opts...)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}

	s.jobs[job.ID] = &entry{
		info: JobInfo{
			ID:          job.ID,
			Name:        job.Name,
			Description: job.Description,
			Status:      JobStatusScheduled,
			Schedule:    job.Schedule,
			Enabled:     true,
			Singleton:   job.Singleton,
		},
		job:        gj,
		runOnStart: job.RunOnStart,
	}
	s.log.Info("Added job to scheduler", "id", job.ID, "name", job.Name, "singleton", job.Singleton)
	return nil
}

// RunJobNow triggers a job outside of its schedule.
func (s *Scheduler) RunJobNow(id string) error {
	s.mu.RLock()
	e, exists := s.jobs[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}

	s.log.Info("Manually triggering job", "id", id)
	if err := e.job.RunNow(); err != nil {
		return fmt.Errorf("failed to trigger job %s: %w", id, err)
	}
	return nil
}

// Jobs returns the state of all jobs ordered by id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		infos = append(infos, e.info)
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return cmp.Compare(a.ID, b.ID) })
	return infos
}

// Job returns the state of a job.
func (s *Scheduler) Job(id string) (JobInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.jobs[id]
	if !exists {
		return JobInfo{}, false
	}
	return e.info, true
}

// SetEnabled enables or disables a job. Disabled jobs stay scheduled but skip their runs.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}
	e.info.Enabled = enabled
	s.log.Info("Changed job state", "id", id, "enabled", enabled)
	return nil
}

// wrap records the statistics of every run of the job.
func (s *Scheduler) wrap(id string, run JobFunc) func() {
	return func() {
		s.mu.Lock()
		e := s.jobs[id]
		if e == nil || !e.info.Enabled {
			s.mu.Unlock()
			s.log.Debug("Job is disabled, skipping", "id", id)
			return
		}
		e.info.Status = JobStatusRunning
		e.info.LastRun = time.Now()
		e.info.RunCount++
		s.mu.Unlock()

		s.log.Debug("Starting job", "id", id)
		err := run(s.ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if nextRun, nerr := e.job.NextRun(); nerr == nil {
			e.info.NextRun = nextRun
		}
		if err != nil {
			s.log.Error("Job failed", "id", id, "error", err)
			e.info.Status = JobStatusFailed
			e.info.ErrorCount++
			e.info.LastError = err.Error()
			return
		}
		s.log.Debug("Job completed", "id", id)
		e.info.Status = JobStatusCompleted
		e.info.LastError = ""
	}
}
