// Package worker runs agent jobs. A job is one room with at least one
// participant; the worker prewarms shared resources once per process and
// then runs the entrypoint for every job in its own goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-voiceform/pkg/room"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("worker: closed")

// DefaultShutdownTimeout bounds the shutdown callbacks of one job.
const DefaultShutdownTimeout = 10 * time.Second

// Job is a unit of work: a room the agent should serve. Done, when set, is
// closed when the room empties.
type Job struct {
	ID   string
	Room *room.Room
	Done <-chan struct{}
}

// NewJob creates a job for r with a fresh ID.
func NewJob(r *room.Room, done <-chan struct{}) Job {
	return Job{ID: "job-" + uuid.New().String()[:8], Room: r, Done: done}
}

// Process holds what the prewarm hook loaded for every job of this process.
type Process struct {
	mu       sync.RWMutex
	userdata map[string]any
}

// Set stores a shared resource.
func (p *Process) Set(key string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userdata == nil {
		p.userdata = make(map[string]any)
	}
	p.userdata[key] = v
}

// Get returns a shared resource.
func (p *Process) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.userdata[key]
	return v, ok
}

// JobContext is handed to the entrypoint of one job.
type JobContext struct {
	ID      string
	Room    *room.Room
	Proc    *Process
	Logger  *slog.Logger
	Started time.Time

	cancel context.CancelFunc

	mu        sync.Mutex
	callbacks []func(ctx context.Context)
}

// AddShutdownCallback registers fn to run when the job ends. Callbacks run
// in reverse registration order.
func (jc *JobContext) AddShutdownCallback(fn func(ctx context.Context)) {
	jc.mu.Lock()
	jc.callbacks = append(jc.callbacks, fn)
	jc.mu.Unlock()
}

// Shutdown ends the job early, e.g. when its runtime disconnects.
func (jc *JobContext) Shutdown(reason string) {
	jc.Logger.Info("job shutdown requested", "reason", reason)
	jc.cancel()
}

func (jc *JobContext) runShutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	jc.mu.Lock()
	cbs := jc.callbacks
	jc.callbacks = nil
	jc.mu.Unlock()

	for i := len(cbs) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					jc.Logger.Error("shutdown callback panicked", "panic", r)
				}
			}()
			cbs[i](ctx)
		}()
	}
}

// Options configures a Worker.
type Options struct {
	// Agent names the agent for logs.
	Agent string

	// Prewarm runs once per process before the first job.
	Prewarm func(proc *Process) error

	// Entrypoint sets up one job. It returns once the session is running;
	// the job then lasts until its room empties or Shutdown is called.
	Entrypoint func(ctx context.Context, jc *JobContext) error

	ShutdownTimeout time.Duration
}

// JobInfo describes a running job.
type JobInfo struct {
	ID      string    `json:"id"`
	Room    string    `json:"room"`
	Agent   string    `json:"agent"`
	Started time.Time `json:"started"`
}

// Worker runs jobs.
type Worker struct {
	opts   Options
	logger *slog.Logger
	proc   *Process

	prewarmOnce sync.Once
	prewarmErr  error

	mu      sync.Mutex
	jobs    map[string]*JobContext
	closed  bool
	closing chan struct{}
}

// New creates a worker.
func New(opts Options, logger *slog.Logger) (*Worker, error) {
	if opts.Entrypoint == nil {
		return nil, errors.New("worker: no entrypoint")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		opts:    opts,
		logger:  logger.With("agent", opts.Agent),
		proc:    &Process{},
		jobs:    make(map[string]*JobContext),
		closing: make(chan struct{}),
	}, nil
}

// Process returns the process shared by every job.
func (w *Worker) Process() *Process {
	return w.proc
}

// Prewarm runs the prewarm hook if it has not run yet.
func (w *Worker) Prewarm() error {
	w.prewarmOnce.Do(func() {
		if w.opts.Prewarm == nil {
			return
		}
		start := time.Now()
		if err := w.opts.Prewarm(w.proc); err != nil {
			w.prewarmErr = fmt.Errorf("worker: prewarm: %w", err)
			return
		}
		w.logger.Info("prewarm complete", "took", time.Since(start).Round(time.Millisecond))
	})
	return w.prewarmErr
}

// Run prewarms and then runs every job received from jobs until ctx is
// done, jobs is closed or Close is called. It waits for running jobs to
// finish their shutdown callbacks before returning; when jobs is closed the
// running jobs are left to end on their own.
func (w *Worker) Run(ctx context.Context, jobs <-chan Job) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := w.Prewarm(); err != nil {
		return err
	}
	w.logger.Info("worker ready, waiting for jobs")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-w.closing:
			cancel()
			wg.Wait()
			return nil
		case job, ok := <-jobs:
			if !ok {
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.runJob(ctx, job)
			}()
		}
	}
}

func (w *Worker) runJob(parent context.Context, job Job) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if job.ID == "" {
		job.ID = "job-" + uuid.New().String()[:8]
	}
	roomName := ""
	if job.Room != nil {
		roomName = job.Room.Name()
	}

	jc := &JobContext{
		ID:      job.ID,
		Room:    job.Room,
		Proc:    w.proc,
		Logger:  w.logger.With("job_id", job.ID, "room", roomName),
		Started: time.Now(),
		cancel:  cancel,
	}

	if job.Done != nil {
		go func() {
			select {
			case <-job.Done:
				jc.Logger.Debug("room emptied")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	w.mu.Lock()
	w.jobs[jc.ID] = jc
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.jobs, jc.ID)
		w.mu.Unlock()
	}()

	jc.Logger.Info("job started")
	if err := w.entrypoint(ctx, jc); err != nil {
		jc.Logger.Error("entrypoint failed", "error", err)
	} else {
		<-ctx.Done()
	}

	jc.runShutdown(w.opts.ShutdownTimeout)
	jc.Logger.Info("job ended", "duration", time.Since(jc.Started).Round(time.Millisecond))
}

func (w *Worker) entrypoint(ctx context.Context, jc *JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: entrypoint panicked: %v", r)
		}
	}()
	return w.opts.Entrypoint(ctx, jc)
}

// Jobs returns the running jobs, oldest first.
func (w *Worker) Jobs() []JobInfo {
	w.mu.Lock()
	out := make([]JobInfo, 0, len(w.jobs))
	for _, jc := range w.jobs {
		info := JobInfo{ID: jc.ID, Agent: w.opts.Agent, Started: jc.Started}
		if jc.Room != nil {
			info.Room = jc.Room.Name()
		}
		out = append(out, info)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Close stops Run and ends the running jobs.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.closing)
	return nil
}
