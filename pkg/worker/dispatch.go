package worker

import (
	"sync"

	"github.com/teslashibe/go-voiceform/pkg/room"
)

// Dispatcher turns room activity into jobs: the first participant of a room
// starts a job and the room emptying ends it.
type Dispatcher struct {
	jobs chan Job

	mu     sync.Mutex
	active map[*room.Room]chan struct{}
}

// NewDispatcher registers on m and returns a dispatcher whose Jobs feed
// Worker.Run.
func NewDispatcher(m *room.Manager) *Dispatcher {
	d := &Dispatcher{
		jobs:   make(chan Job, 16),
		active: make(map[*room.Room]chan struct{}),
	}
	m.OnJoin(d.joined)
	m.OnEmpty(d.emptied)
	return d
}

// Jobs returns the job channel.
func (d *Dispatcher) Jobs() <-chan Job {
	return d.jobs
}

func (d *Dispatcher) joined(r *room.Room, _ room.Participant) {
	d.mu.Lock()
	if _, ok := d.active[r]; ok {
		d.mu.Unlock()
		return
	}
	done := make(chan struct{})
	d.active[r] = done
	d.mu.Unlock()

	d.jobs <- NewJob(r, done)
}

func (d *Dispatcher) emptied(r *room.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if done, ok := d.active[r]; ok {
		close(done)
		delete(d.active, r)
	}
}
