package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/katamari-go/katamari/internal/codec"
	"github.com/katamari-go/katamari/internal/orm"
	"github.com/katamari-go/katamari/internal/record"
	"github.com/katamari-go/katamari/internal/search"
)

func TestParseIntervalSumsComponents(t *testing.T) {
	got := ParseInterval("2w3d5h20m30s")
	want := time.Duration(2*604800+3*86400+5*3600+20*60+30) * time.Second
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseIntervalIgnoresGarbage(t *testing.T) {
	if got := ParseInterval("not an interval"); got != 0 {
		t.Fatalf("expected zero duration, got %v", got)
	}
}

func TestShardDataContiguous(t *testing.T) {
	data := make([]any, 10)
	for i := range data {
		data[i] = i
	}
	shards := ShardData(data, 3)
	if len(shards) != 3 {
		t.Fatalf("expected exactly 3 shards for non-divisible input, got %d", len(shards))
	}
	total := 0
	for _, s := range shards {
		total += len(s)
	}
	if total != len(data) {
		t.Fatalf("shards dropped elements: total %d, want %d", total, len(data))
	}
	if len(shards[len(shards)-1]) != 4 {
		t.Fatalf("expected the last shard to absorb the remainder (4 elements), got %d", len(shards[len(shards)-1]))
	}
}

func TestShardDataFewerElementsThanShards(t *testing.T) {
	data := []any{1, 2}
	shards := ShardData(data, 5)
	if len(shards) != 2 {
		t.Fatalf("expected 2 shards when data has fewer elements than requested, got %d", len(shards))
	}
}

func newTestStore(t *testing.T) *orm.ORM {
	t.Helper()
	dir := t.TempDir()
	engine, err := record.Open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatal(err)
	}
	schema, err := search.NewSchema(map[string]string{"state": "KEYWORD"})
	if err != nil {
		t.Fatal(err)
	}
	store := orm.New(engine, orm.Options{
		Schema:     schema,
		CacheSize:  100,
		TxLogPath:  filepath.Join(dir, "txlog.ndjson"),
		CodecOpts:  codec.DefaultOptions(),
		LockShards: 16,
	})
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPipelineExecutorRunsJobsInOrder(t *testing.T) {
	store := newTestStore(t)

	var order []string
	run := func(ctx context.Context, job *JobModel) error {
		order = append(order, job.Name)
		return nil
	}

	cfg := PipelineConfig{
		Name: "test-pipeline",
		Jobs: []JobSpec{{Name: "first"}, {Name: "second"}, {Name: "third"}},
	}
	executor, err := NewPipelineExecutor(store, cfg, run)
	if err != nil {
		t.Fatal(err)
	}
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
	if executor.pipeline.state.Get() != PipelineCompleted {
		t.Fatalf("expected pipeline to finish Completed, got %v", executor.pipeline.state.Get())
	}
}

func TestPipelineExecutorMarksFailedJobs(t *testing.T) {
	store := newTestStore(t)

	run := func(ctx context.Context, job *JobModel) error {
		if job.Name == "boom" {
			return context.DeadlineExceeded
		}
		return nil
	}

	cfg := PipelineConfig{Name: "fail-pipeline", Jobs: []JobSpec{{Name: "boom"}}}
	executor, err := NewPipelineExecutor(store, cfg, run)
	if err != nil {
		t.Fatal(err)
	}
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if executor.jobs[0].state.Get() != JobFailed {
		t.Fatalf("expected job to be marked Failed, got %v", executor.jobs[0].state.Get())
	}
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	sm := newStateMachine(JobPending, jobTransitions)
	if err := sm.Set(JobCompleted); err == nil {
		t.Fatal("expected Pending -> Completed to be rejected")
	}
	if err := sm.Set(JobRunning); err != nil {
		t.Fatalf("expected Pending -> Running to be allowed, got %v", err)
	}
}
