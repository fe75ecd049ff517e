package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/katamari-go/katamari/internal/klog"
	"github.com/katamari-go/katamari/internal/orm"
)

// JobSpec describes one job in a pipeline's configuration: a name and
// an optional schedule string.
type JobSpec struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
}

// PipelineConfig is one pipeline definition: a name and its ordered
// jobs.
type PipelineConfig struct {
	Name string    `json:"name"`
	Jobs []JobSpec `json:"jobs"`
}

// PipelineModel is the persisted, stateful record of one pipeline run.
type PipelineModel struct {
	Name      string
	Config    PipelineConfig
	state     *stateMachine[PipelineState]
	createdAt time.Time
}

func newPipelineModel(cfg PipelineConfig) *PipelineModel {
	return &PipelineModel{
		Name:      cfg.Name,
		Config:    cfg,
		state:     newStateMachine(PipelineScheduled, pipelineTransitions),
		createdAt: time.Now(),
	}
}

func (p *PipelineModel) save(store *orm.ORM) error {
	return store.Set("pipeline/"+p.Name, map[string]any{
		"name":       p.Name,
		"state":      string(p.state.Get()),
		"created_at": p.createdAt.UTC().Format(time.RFC3339),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}, false, 0)
}

// JobModel is the persisted, stateful record of one job within a
// pipeline run.
type JobModel struct {
	PipelineName string
	Name         string
	Schedule     string
	state        *stateMachine[JobState]
	createdAt    time.Time
}

func newJobModel(pipelineName string, spec JobSpec) *JobModel {
	return &JobModel{
		PipelineName: pipelineName,
		Name:         spec.Name,
		Schedule:     spec.Schedule,
		state:        newStateMachine(JobPending, jobTransitions),
		createdAt:    time.Now(),
	}
}

func (j *JobModel) save(store *orm.ORM) error {
	return store.Set("pipeline/"+j.PipelineName+"/job/"+j.Name, map[string]any{
		"pipeline_id": j.PipelineName,
		"name":        j.Name,
		"state":       string(j.state.Get()),
		"schedule":    j.Schedule,
		"created_at":  j.createdAt.UTC().Format(time.RFC3339),
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	}, false, 0)
}

// RunFunc executes one job's work and reports success or failure. The
// default used by PipelineExecutor simply marks the job complete; a
// caller that needs real work done supplies its own RunFunc.
type RunFunc func(ctx context.Context, job *JobModel) error

// PipelineExecutor runs a pipeline's jobs one at a time in declared
// order, persisting state transitions through store and waiting for
// each job to finish before starting the next.
type PipelineExecutor struct {
	pipeline *PipelineModel
	jobs     []*JobModel
	store    *orm.ORM
	run      RunFunc
}

// NewPipelineExecutor builds an executor for cfg's jobs, persisting the
// pipeline and its jobs up front. run is invoked for every job; pass nil
// to use a no-op runner that only exercises the state machine.
func NewPipelineExecutor(store *orm.ORM, cfg PipelineConfig, run RunFunc) (*PipelineExecutor, error) {
	pipeline := newPipelineModel(cfg)
	if err := pipeline.save(store); err != nil {
		return nil, err
	}

	jobs := make([]*JobModel, 0, len(cfg.Jobs))
	for _, spec := range cfg.Jobs {
		job := newJobModel(cfg.Name, spec)
		if err := job.save(store); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if run == nil {
		run = func(ctx context.Context, job *JobModel) error { return nil }
	}

	return &PipelineExecutor{pipeline: pipeline, jobs: jobs, store: store, run: run}, nil
}

// Execute transitions the pipeline to Running, runs every job to
// completion in order, and transitions the pipeline to Completed.
func (e *PipelineExecutor) Execute(ctx context.Context) error {
	log := klog.Component("dispatch.pipeline")

	if err := e.pipeline.state.Set(PipelineRunning); err != nil {
		return err
	}
	if err := e.pipeline.save(e.store); err != nil {
		return err
	}

	for _, job := range e.jobs {
		if err := e.runJob(ctx, job); err != nil {
			log.Warn().Err(err).Str("pipeline", e.pipeline.Name).Str("job", job.Name).Msg("job failed")
		}
	}

	if err := e.pipeline.state.Set(PipelineCompleted); err != nil {
		return err
	}
	return e.pipeline.save(e.store)
}

func (e *PipelineExecutor) runJob(ctx context.Context, job *JobModel) error {
	if err := job.state.Set(JobRunning); err != nil {
		return err
	}
	if err := job.save(e.store); err != nil {
		return err
	}

	runErr := e.run(ctx, job)

	if runErr != nil {
		job.state.Set(JobFailed)
	} else {
		job.state.Set(JobCompleted)
	}
	return job.save(e.store)
}

// PipelineManager owns a set of pipeline configs and can run them once
// or repeatedly on an interval, bounding how many run concurrently with
// a fixed-size semaphore so a slow job in one pipeline can't let an
// unbounded number of ticks pile up.
type PipelineManager struct {
	store       *orm.ORM
	configs     []PipelineConfig
	run         RunFunc
	concurrency chan struct{}
}

// NewPipelineManager builds a manager for configs, capping concurrent
// pipeline executions at maxConcurrent (a non-positive value means 4).
func NewPipelineManager(store *orm.ORM, configs []PipelineConfig, run RunFunc, maxConcurrent int) *PipelineManager {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &PipelineManager{
		store:       store,
		configs:     configs,
		run:         run,
		concurrency: make(chan struct{}, maxConcurrent),
	}
}

// RunOnce executes every configured pipeline once, concurrently, each
// bounded by a per-invocation deadline.
func (m *PipelineManager) RunOnce(deadline time.Duration) {
	var wg sync.WaitGroup
	for _, cfg := range m.configs {
		cfg := cfg
		wg.Add(1)
		m.concurrency <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-m.concurrency }()

			ctx, cancel := context.WithTimeout(context.Background(), deadline)
			defer cancel()

			executor, err := NewPipelineExecutor(m.store, cfg, m.run)
			if err != nil {
				klog.Component("dispatch.pipeline").Warn().Err(err).Str("pipeline", cfg.Name).Msg("failed to build executor")
				return
			}
			if err := executor.Execute(ctx); err != nil {
				klog.Component("dispatch.pipeline").Warn().Err(err).Str("pipeline", cfg.Name).Msg("pipeline execution failed")
			}
		}()
	}
	wg.Wait()
}

// RunEvery runs every configured pipeline on a repeating schedule
// parsed from intervalStr (e.g. "5m", "1h30m" in this module's own
// interval syntax), until stop is closed. Each tick's executions get a
// deadline of one interval, so a stuck pipeline can't accumulate ticks
// indefinitely.
func (m *PipelineManager) RunEvery(intervalStr string, stop <-chan struct{}) error {
	interval := ParseInterval(intervalStr)
	if interval <= 0 {
		return fmt.Errorf("invalid interval %q", intervalStr)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := klog.Component("dispatch.pipeline")
	for {
		log.Info().Str("interval", intervalStr).Msg("scheduling pipelines")
		m.RunOnce(interval)

		select {
		case <-ticker.C:
		case <-stop:
			return nil
		}
	}
}
