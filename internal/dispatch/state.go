package dispatch

import (
	"sync"

	"github.com/katamari-go/katamari/internal/kerrors"
)

// PipelineState is one of a pipeline's lifecycle states.
type PipelineState string

const (
	PipelineScheduled PipelineState = "Scheduled"
	PipelineRunning   PipelineState = "Running"
	PipelinePaused    PipelineState = "Paused"
	PipelineCompleted PipelineState = "Completed"
)

// JobState is one of a job's lifecycle states.
type JobState string

const (
	JobPending   JobState = "Pending"
	JobRunning   JobState = "Running"
	JobCompleted JobState = "Completed"
	JobFailed    JobState = "Failed"
)

var pipelineTransitions = map[PipelineState]map[PipelineState]bool{
	PipelineScheduled: {PipelineRunning: true},
	PipelineRunning:    {PipelinePaused: true, PipelineCompleted: true},
	PipelinePaused:     {PipelineRunning: true},
	PipelineCompleted:  {},
}

var jobTransitions = map[JobState]map[JobState]bool{
	JobPending:   {JobRunning: true},
	JobRunning:   {JobCompleted: true, JobFailed: true},
	JobCompleted: {},
	JobFailed:    {},
}

// stateMachine is a small generic guard against illegal transitions.
// Pipelines and jobs delegate to one rather than mutating their state
// field directly.
type stateMachine[S comparable] struct {
	mu          sync.Mutex
	current     S
	transitions map[S]map[S]bool
}

func newStateMachine[S comparable](initial S, transitions map[S]map[S]bool) *stateMachine[S] {
	return &stateMachine[S]{current: initial, transitions: transitions}
}

func (m *stateMachine[S]) Get() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *stateMachine[S]) Set(next S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed, ok := m.transitions[m.current]
	if !ok || !allowed[next] {
		return kerrors.Wrapf(kerrors.New("illegal state transition"), "%v -> %v", m.current, next)
	}
	m.current = next
	return nil
}
