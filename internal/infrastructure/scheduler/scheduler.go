// Package scheduler runs background jobs of the worker process: the
// leaderboard refresh and the vibe-coin reconciliation pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of scheduled work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Description returns a human-readable description of the job.
	Description() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next run time after t.
	Next(t time.Time) time.Time
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	RunID       string
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Skipped     bool
	Manual      bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a tick that finds the previous run still active is recorded
// as skipped.
type Scheduler struct {
	mu sync.RWMutex

	log          *logger.Logger
	timezone     *time.Location
	tickInterval time.Duration
	maxHistory   int
	now          func() time.Time

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	metrics    *SchedulerMetrics
	history    []JobResult
	onComplete func(JobResult)
}

type scheduledJob struct {
	job        Job
	schedule   Schedule
	enabled    bool
	runOnStart bool
	active     bool
	lastRun    time.Time
	nextRun    time.Time
	runCount   int64
	failCount  int64
	lastResult *JobResult
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration

	// MaxHistorySize is the number of results kept in memory.
	MaxHistorySize int

	// Now overrides time.Now (tests).
	Now func() time.Time
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:       time.UTC,
		TickInterval:   time.Second,
		MaxHistorySize: 500,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 500
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Scheduler{
		log:          config.Logger.With(logger.Component("scheduler")),
		timezone:     config.Timezone,
		tickInterval: config.TickInterval,
		maxHistory:   config.MaxHistorySize,
		now:          config.Now,
		jobs:         make(map[string]*scheduledJob),
		metrics:      NewSchedulerMetrics(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// JobOption configures a registered job.
type JobOption func(*scheduledJob)

// RunOnStart makes the job run once as soon as the scheduler starts.
func RunOnStart() JobOption {
	return func(sj *scheduledJob) { sj.runOnStart = true }
}

// Disabled registers the job without scheduling it. RunNow still works.
func Disabled() JobOption {
	return func(sj *scheduledJob) { sj.enabled = false }
}

// Register adds a job with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule, opts ...JobOption) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, schedule: schedule, enabled: true}
	for _, opt := range opts {
		opt(sj)
	}
	if sj.enabled {
		sj.nextRun = schedule.Next(s.now().In(s.timezone))
	}
	s.jobs[name] = sj

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Bool("enabled", sj.enabled),
		logger.Time("next_run", sj.nextRun),
	)
	return nil
}

// SetEnabled enables or disables a job by name.
func (s *Scheduler) SetEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = enabled
	if enabled {
		sj.nextRun = sj.schedule.Next(s.now().In(s.timezone))
	} else {
		sj.nextRun = time.Time{}
	}
	return nil
}

// OnJobComplete sets a callback invoked after every run, including skipped ones.
func (s *Scheduler) OnJobComplete(fn func(JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()

	var startup []*scheduledJob
	for _, sj := range s.jobs {
		if sj.enabled && sj.runOnStart {
			startup = append(startup, sj)
		}
	}
	jobCount := len(s.jobs)
	s.mu.Unlock()

	s.log.Info("scheduler started", logger.Int("jobs", jobCount))

	for _, sj := range startup {
		s.dispatch(sj)
	}

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("scheduler stopped", logger.Duration("uptime", s.now().Sub(s.startedAt)))
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

func (s *Scheduler) checkAndRunJobs() {
	now := s.now().In(s.timezone)

	s.mu.RLock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.enabled && !sj.nextRun.IsZero() && !now.Before(sj.nextRun) {
			due = append(due, sj)
		}
	}
	s.mu.RUnlock()

	for _, sj := range due {
		s.dispatch(sj)
	}
}

// dispatch advances the job's next run and starts it unless it is still active.
func (s *Scheduler) dispatch(sj *scheduledJob) {
	startedAt := s.now()

	s.mu.Lock()
	sj.nextRun = sj.schedule.Next(startedAt.In(s.timezone))
	if sj.active {
		s.mu.Unlock()
		s.log.Warn("job still running, tick skipped", logger.String("job", sj.job.Name()))
		s.record(sj, JobResult{
			RunID:       uuid.NewString(),
			JobName:     sj.job.Name(),
			StartedAt:   startedAt,
			CompletedAt: startedAt,
			Skipped:     true,
		})
		return
	}
	sj.active = true
	sj.lastRun = startedAt
	sj.runCount++
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result := s.execute(ctx, sj.job, false)

		s.mu.Lock()
		sj.active = false
		s.mu.Unlock()

		s.record(sj, result)
	}()
}

// execute runs the job with panic recovery and logs the outcome.
func (s *Scheduler) execute(ctx context.Context, job Job, manual bool) (result JobResult) {
	result = JobResult{
		RunID:     uuid.NewString(),
		JobName:   job.Name(),
		StartedAt: s.now(),
		Manual:    manual,
	}
	log := s.log.With(logger.String("job", job.Name()), logger.String("run_id", result.RunID))
	log.Info("job started", logger.Bool("manual", manual))

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
		result.CompletedAt = s.now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
		result.Success = result.Error == nil

		if result.Error != nil {
			log.Error("job failed", logger.Latency(result.Duration), logger.Err(result.Error))
		} else {
			log.Info("job completed", logger.Latency(result.Duration))
		}
	}()

	result.Error = job.Run(ctx)
	return result
}

func (s *Scheduler) record(sj *scheduledJob, result JobResult) {
	if !result.Skipped {
		s.metrics.RecordExecution(result.JobName, result.Duration, result.Success)
	}

	s.mu.Lock()
	if !result.Success && !result.Skipped {
		sj.failCount++
	}
	r := result
	sj.lastResult = &r
	s.history = append(s.history, result)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	onComplete := s.onComplete
	s.mu.Unlock()

	if onComplete != nil {
		onComplete(result)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately and synchronously, ignoring its schedule.
// It fails with ErrJobRunning if a scheduled run is in progress.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.active {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.active = true
	sj.runCount++
	sj.lastRun = s.now()
	s.mu.Unlock()

	result := s.execute(ctx, sj.job, true)

	s.mu.Lock()
	sj.active = false
	s.mu.Unlock()
	s.record(sj, result)

	return result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Running     bool       `json:"running"`
	Schedule    string     `json:"schedule"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastResult  *JobResult `json:"-"`
}

// ListJobs returns information about all jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Enabled:     sj.enabled,
			Running:     sj.active,
			Schedule:    sj.schedule.String(),
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  sj.lastResult,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// History returns up to limit most recent results, oldest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// Metrics returns scheduler metrics.
func (s *Scheduler) Metrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks job executions.
type SchedulerMetrics struct {
	mu sync.RWMutex

	totalExecutions int64
	totalFailures   int64
	totalDuration   time.Duration
	failuresByJob   map[string]int64
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{failuresByJob: make(map[string]int64)}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExecutions++
	m.totalDuration += duration
	if !success {
		m.totalFailures++
		m.failuresByJob[jobName]++
	}
}

// MetricsSnapshot is a point-in-time view of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64         `json:"total_executions"`
	TotalFailures   int64         `json:"total_failures"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.totalExecutions,
		TotalFailures:   m.totalFailures,
	}
	if m.totalExecutions > 0 {
		snap.SuccessRate = float64(m.totalExecutions-m.totalFailures) / float64(m.totalExecutions)
		snap.AverageDuration = m.totalDuration / time.Duration(m.totalExecutions)
	}
	return snap
}

// Failures returns the failure count of one job.
func (m *SchedulerMetrics) Failures(jobName string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failuresByJob[jobName]
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrJobPanic                = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
