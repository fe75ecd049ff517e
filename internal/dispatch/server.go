package dispatch

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/katamari-go/katamari/internal/kerrors"
	"github.com/katamari-go/katamari/internal/klog"
	"github.com/katamari-go/katamari/internal/kmetrics"
	"github.com/katamari-go/katamari/internal/orm"
)

// workerConn is a registered worker's live connection and last-reported
// state.
type workerConn struct {
	id            string
	conn          *websocket.Conn
	writeMu       sync.Mutex
	workload      int
	lastHeartbeat time.Time
}

func (w *workerConn) send(msg Message) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(msg)
}

// Server accepts worker WebSocket connections and shards pipeline and
// lambda work across them by current workload, persisting worker and
// shard state through the ORM so it survives a dispatcher restart.
type Server struct {
	store *orm.ORM

	mu      sync.Mutex
	workers map[string]*workerConn

	completionsMu sync.Mutex
	completions   map[string]chan Message

	upgrader websocket.Upgrader
}

// NewServer constructs a dispatcher server backed by store for worker
// and shard persistence.
func NewServer(store *orm.ORM) *Server {
	return &Server{
		store:       store,
		workers:     make(map[string]*workerConn),
		completions: make(map[string]chan Message),
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// ServeHTTP upgrades the connection, expects the worker's registration
// frame first, then serves its message loop until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var reg Message
	if err := conn.ReadJSON(&reg); err != nil || reg.Type != MsgRegister || reg.WorkerID == "" {
		conn.Close()
		return
	}

	wc := s.registerWorker(reg.WorkerID, conn)
	defer s.unregisterWorker(reg.WorkerID)

	s.receiveMessages(wc)
}

func (s *Server) registerWorker(id string, conn *websocket.Conn) *workerConn {
	wc := &workerConn{id: id, conn: conn, lastHeartbeat: time.Now()}

	s.mu.Lock()
	s.workers[id] = wc
	s.mu.Unlock()

	_ = s.store.Set("worker/"+id, map[string]any{
		"worker_id":     id,
		"workload":      0,
		"registered_at": time.Now().UTC().Format(time.RFC3339),
	}, false, 0)

	kmetrics.WorkersConnected.Set(float64(s.workerCount()))
	klog.Component("dispatch.server").Info().Str("worker_id", id).Msg("worker registered")
	return wc
}

func (s *Server) unregisterWorker(id string) {
	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()
	kmetrics.WorkersConnected.Set(float64(s.workerCount()))
}

func (s *Server) workerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// updateHeartbeat records a worker's latest reported workload.
func (s *Server) updateHeartbeat(id string, workload int) {
	s.mu.Lock()
	wc, ok := s.workers[id]
	if ok {
		wc.workload = workload
		wc.lastHeartbeat = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	kmetrics.WorkerWorkload.WithLabelValues(id).Set(float64(workload))
	_ = s.store.Set("worker/"+id, map[string]any{
		"worker_id":      id,
		"workload":       workload,
		"last_heartbeat": time.Now().UTC().Format(time.RFC3339),
	}, false, 0)
}

func (s *Server) receiveMessages(wc *workerConn) {
	for {
		var msg Message
		if err := wc.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case MsgHeartbeat:
			s.updateHeartbeat(wc.id, msg.Workload)
		case MsgJobComplete, MsgJobFailed:
			s.notifyCompletion(msg)
		}
	}
}

func (s *Server) notifyCompletion(msg Message) {
	s.completionsMu.Lock()
	ch, ok := s.completions[msg.JobID]
	s.completionsMu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

// awaitCompletion registers interest in jobID's completion and blocks
// until it arrives or timeout elapses.
func (s *Server) awaitCompletion(jobID string, timeout time.Duration) (Message, error) {
	ch := make(chan Message, 1)
	s.completionsMu.Lock()
	s.completions[jobID] = ch
	s.completionsMu.Unlock()
	defer func() {
		s.completionsMu.Lock()
		delete(s.completions, jobID)
		s.completionsMu.Unlock()
	}()

	select {
	case msg := <-ch:
		return msg, nil
	case <-time.After(timeout):
		return Message{}, &kerrors.TimeoutError{Name: jobID, Timeout: timeout.String()}
	}
}

// ShardData splits data into exactly numShards contiguous slices by
// integer division, with the remainder folded into the final shard.
// When data has fewer elements than numShards, one shard per element is
// returned instead (there's no way to produce more non-empty shards
// than there are elements).
func ShardData(data []any, numShards int) [][]any {
	if numShards <= 0 || len(data) == 0 {
		return nil
	}
	if numShards > len(data) {
		numShards = len(data)
	}
	shardSize := len(data) / numShards
	shards := make([][]any, 0, numShards)
	start := 0
	for i := 0; i < numShards; i++ {
		end := start + shardSize
		if i == numShards-1 {
			end = len(data)
		}
		shards = append(shards, data[start:end])
		start = end
	}
	return shards
}

// workersSortedByWorkload returns worker ids ascending by current
// workload, the least loaded first.
func (s *Server) workersSortedByWorkload() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.workers[ids[i]].workload < s.workers[ids[j]].workload })
	return ids
}

// AssignShards splits jobData into one shard per live worker and
// assigns each shard to a worker in ascending-workload order, so the
// least loaded workers receive shards first. Shard assignments are
// persisted before dispatch so a restarted dispatcher can recover them.
func (s *Server) AssignShards(jobID string, data []any) error {
	workers := s.workersSortedByWorkload()
	if len(workers) == 0 {
		return kerrors.New("no workers registered")
	}

	shards := ShardData(data, len(workers))
	for i, shard := range shards {
		workerID := workers[i%len(workers)]
		shardKey := fmt.Sprintf("shard_%s_%d", jobID, i)

		if err := s.store.Set(shardKey, map[string]any{
			"shard_data":  shard,
			"assigned_to": workerID,
		}, false, 0); err != nil {
			return err
		}

		job := &Job{ID: jobID, Kind: JobPipelineShard, ShardKey: shardKey, Data: shard}
		if err := s.sendJobToWorker(workerID, job); err != nil {
			return err
		}
		kmetrics.ShardsAssigned.Inc()
	}
	return nil
}

func (s *Server) sendJobToWorker(workerID string, job *Job) error {
	s.mu.Lock()
	wc, ok := s.workers[workerID]
	s.mu.Unlock()
	if !ok {
		return kerrors.Wrapf(kerrors.New("unknown worker"), "worker %q", workerID)
	}
	return wc.send(Message{Type: MsgJob, Job: job})
}

// DispatchLambda sends a lambda invocation to the least loaded worker
// and waits up to timeout for its completion frame.
func (s *Server) DispatchLambda(name string, args map[string]any, timeout time.Duration) (any, error) {
	workers := s.workersSortedByWorkload()
	if len(workers) == 0 {
		return nil, kerrors.New("no workers registered")
	}

	jobID := name + "-" + fmt.Sprint(time.Now().UnixNano())
	job := &Job{ID: jobID, Kind: JobLambda, Lambda: name, Args: args}
	if err := s.sendJobToWorker(workers[0], job); err != nil {
		return nil, err
	}

	msg, err := s.awaitCompletion(jobID, timeout)
	if err != nil {
		return nil, &kerrors.TimeoutError{Name: name, Timeout: timeout.String()}
	}
	if msg.Type == MsgJobFailed {
		return nil, &kerrors.ProtocolError{WorkerID: workers[0], Err: fmt.Errorf("%s", msg.Error)}
	}
	return msg.Result, nil
}
