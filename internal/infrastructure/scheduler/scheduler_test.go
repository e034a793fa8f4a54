package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func mustParse(t *testing.T, spec string) Schedule {
	t.Helper()
	s, err := ParseSchedule(spec)
	require.NoError(t, err)
	return s
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 17, 30, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{"@every 1h", base.Add(time.Hour)},
		{"@hourly", time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)},
		{"0 9-17/4 * * *", time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)},
		{"30 2 1 * *", time.Date(2026, 4, 1, 2, 30, 0, 0, time.UTC)},
		// 2026-03-14 is a Saturday.
		{"0 0 * * 1", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"0 12 * 6 *", time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			assert.Equal(t, tt.want, mustParse(t, tt.spec).Next(base))
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, spec := range []string{"", "* * * *", "60 * * * *", "5-1 * * * *", "*/0 * * * *", "a * * * *", "@every 10ms", "@every soon"} {
		_, err := ParseSchedule(spec)
		assert.Error(t, err, spec)
	}
}

func TestCronExpression_NextIsStrictlyAfter(t *testing.T) {
	ce := MustParseCronExpression("0 3 * * *")
	at := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, at.AddDate(0, 0, 1), ce.Next(at))
	assert.Equal(t, "0 3 * * *", ce.String())
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)
}

func TestScheduler_RunsDueJobsAndStops(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickInterval: 5 * time.Millisecond})

	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "tick", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, NewIntervalSchedule(10*time.Millisecond), RunOnStart()))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(3))
	assert.Equal(t, "@every 10ms", infos[0].Schedule)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickInterval: 2 * time.Millisecond})

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "slow", run: func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, NewIntervalSchedule(5*time.Millisecond), RunOnStart()))

	var mu sync.Mutex
	skipped := 0
	s.OnJobComplete(func(r JobResult) {
		mu.Lock()
		defer mu.Unlock()
		if r.Skipped {
			skipped++
		}
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return skipped >= 2
	}, 2*time.Second, 2*time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
	close(release)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNowRecordsFailuresAndPanics(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	errBoom := errors.New("boom")

	require.NoError(t, s.Register(&funcJob{name: "fail", run: func(context.Context) error { return errBoom }},
		NewIntervalSchedule(time.Hour), Disabled()))
	require.NoError(t, s.Register(&funcJob{name: "panic", run: func(context.Context) error { panic("oops") }},
		NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "fail")
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)
	assert.NotEmpty(t, res.RunID)

	res, err = s.RunNow(context.Background(), "panic")
	assert.ErrorIs(t, err, ErrJobPanic)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(10)
	require.Len(t, history, 2)
	assert.Equal(t, "fail", history[0].JobName)
	assert.Equal(t, "panic", history[1].JobName)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalFailures)
	assert.Equal(t, int64(1), s.Metrics().Failures("fail"))

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "fail", infos[0].Name)
	assert.False(t, infos[0].Enabled)
	assert.Equal(t, int64(1), infos[0].FailCount)
}
