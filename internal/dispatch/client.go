package dispatch

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/katamari-go/katamari/internal/klog"
)

// LambdaFunc is a user-supplied handler invoked for a JobLambda job.
type LambdaFunc func(args map[string]any) (any, error)

// ShardFunc processes one pipeline shard's data.
type ShardFunc func(shardData any) (any, error)

const heartbeatInterval = 5 * time.Second

// Worker connects to a dispatcher server, registers under id, and
// processes whatever jobs it is sent until Close is called.
type Worker struct {
	id       string
	conn     *websocket.Conn
	writeMu  sync.Mutex
	workload int64

	lambdas map[string]LambdaFunc
	shard   ShardFunc

	done chan struct{}
}

// Dial connects to serverURL and registers as id.
func Dial(serverURL, id string) (*Worker, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		id:      id,
		conn:    conn,
		lambdas: make(map[string]LambdaFunc),
		done:    make(chan struct{}),
	}

	if err := w.send(Message{Type: MsgRegister, WorkerID: id, Workload: 0}); err != nil {
		conn.Close()
		return nil, err
	}

	return w, nil
}

// RegisterLambda installs handler for lambda invocations named name.
func (w *Worker) RegisterLambda(name string, handler LambdaFunc) {
	w.lambdas[name] = handler
}

// SetShardHandler installs the function used to process pipeline shard
// jobs.
func (w *Worker) SetShardHandler(handler ShardFunc) {
	w.shard = handler
}

func (w *Worker) send(msg Message) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(msg)
}

// Run starts the heartbeat loop and the job-processing loop, blocking
// until the connection closes or Close is called.
func (w *Worker) Run() {
	go w.heartbeatLoop()
	w.receiveLoop()
}

func (w *Worker) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	log := klog.Component("dispatch.worker")
	for {
		select {
		case <-ticker.C:
			load := int(atomic.LoadInt64(&w.workload))
			if err := w.send(Message{Type: MsgHeartbeat, WorkerID: w.id, Workload: load}); err != nil {
				log.Warn().Err(err).Msg("heartbeat send failed")
			}
		case <-w.done:
			return
		}
	}
}

func (w *Worker) receiveLoop() {
	for {
		var msg Message
		if err := w.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != MsgJob || msg.Job == nil {
			continue
		}
		go w.processJob(msg.Job)
	}
}

func (w *Worker) processJob(job *Job) {
	atomic.AddInt64(&w.workload, 1)
	defer atomic.AddInt64(&w.workload, -1)

	log := klog.Component("dispatch.worker")

	switch job.Kind {
	case JobLambda:
		handler, ok := w.lambdas[job.Lambda]
		if !ok {
			w.send(Message{Type: MsgJobFailed, JobID: job.ID, Error: fmt.Sprintf("no handler for lambda %q", job.Lambda)})
			return
		}
		result, err := handler(job.Args)
		if err != nil {
			w.send(Message{Type: MsgJobFailed, JobID: job.ID, Error: err.Error()})
			return
		}
		w.send(Message{Type: MsgJobComplete, JobID: job.ID, Result: result})

	case JobPipelineShard:
		if w.shard == nil {
			w.send(Message{Type: MsgJobFailed, JobID: job.ID, Error: "no shard handler registered"})
			return
		}
		result, err := w.shard(job.Data)
		if err != nil {
			w.send(Message{Type: MsgJobFailed, JobID: job.ID, Error: err.Error()})
			return
		}
		w.send(Message{Type: MsgJobComplete, JobID: job.ID, Result: result})

	default:
		log.Warn().Str("kind", string(job.Kind)).Msg("unknown job kind")
	}
}

// Close stops the heartbeat loop and closes the connection.
func (w *Worker) Close() error {
	close(w.done)
	return w.conn.Close()
}
