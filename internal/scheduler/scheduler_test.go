package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	err  error
	runs atomic.Int32
}

func (j *fakeJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *fakeJob) Name() string {
	return j.name
}

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) handle(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func newScheduler(t *testing.T) (*Scheduler, *recorder) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	rec := &recorder{}
	for _, eventType := range []events.EventType{events.JobStarted, events.JobCompleted, events.JobFailed} {
		bus.Subscribe(eventType, rec.handle)
	}
	return New(events.NewManager(bus, zerolog.Nop()), zerolog.Nop()), rec
}

func TestScheduler_RunNowEmitsLifecycle(t *testing.T) {
	s, rec := newScheduler(t)
	job := &fakeJob{name: "analysis"}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Equal(t, []events.EventType{events.JobStarted, events.JobCompleted}, rec.types())
	assert.Equal(t, "scheduler", rec.events[0].Module)
	assert.Equal(t, "analysis", rec.events[1].Data["job_name"])
}

func TestScheduler_RunNowFailure(t *testing.T) {
	s, rec := newScheduler(t)
	boom := errors.New("boom")
	job := &fakeJob{name: "broken", err: boom}

	err := s.RunNow(job)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []events.EventType{events.JobStarted, events.JobFailed}, rec.types())
	assert.Equal(t, "boom", rec.events[1].Data["error"])
}

func TestScheduler_AddJob(t *testing.T) {
	s, _ := newScheduler(t)

	require.NoError(t, s.AddJob("@daily", &fakeJob{name: "analysis"}))
	require.NoError(t, s.AddJob("0 */5 * * * *", &fakeJob{name: "settlement"}))

	assert.Error(t, s.AddJob("@daily", &fakeJob{name: "analysis"}), "duplicate name")
	assert.Error(t, s.AddJob("not a schedule", &fakeJob{name: "other"}))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "analysis", jobs[0].Name)
	assert.Equal(t, "@daily", jobs[0].Schedule)
	assert.Equal(t, "settlement", jobs[1].Name)
}

func TestScheduler_RunByName(t *testing.T) {
	s, _ := newScheduler(t)
	job := &fakeJob{name: "analysis", err: errors.New("no prices")}
	require.NoError(t, s.AddJob("@daily", job))

	assert.Error(t, s.RunByName("analysis"))
	assert.Equal(t, int32(1), job.runs.Load())

	info := s.Jobs()[0]
	assert.Equal(t, 1, info.Runs)
	assert.Equal(t, "no prices", info.LastError)
	assert.False(t, info.LastRun.IsZero())

	job.err = nil
	require.NoError(t, s.RunByName("analysis"))
	info = s.Jobs()[0]
	assert.Equal(t, 2, info.Runs)
	assert.Empty(t, info.LastError)

	assert.ErrorIs(t, s.RunByName("missing"), ErrUnknownJob)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s, _ := newScheduler(t)
	job := &fakeJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, s.Jobs()[0].NextRun.IsZero())
}

func TestScheduler_NilEventManager(t *testing.T) {
	s := New(nil, zerolog.Nop())
	assert.NoError(t, s.RunNow(&fakeJob{name: "quiet"}))
}
