package room

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
)

// Manager owns the rooms of one server. A room is created when its first
// participant joins and closed when its last participant leaves.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	rooms   map[string]*Room
	onJoin  []func(r *Room, p Participant)
	onEmpty []func(r *Room)

	iceServers    []webrtc.ICEServer
	gatherTimeout time.Duration

	joins  atomic.Uint64
	leaves atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithICEServers sets the STUN/TURN servers offered to RTC participants.
func WithICEServers(urls ...string) Option {
	return func(m *Manager) {
		if len(urls) > 0 {
			m.iceServers = append(m.iceServers, webrtc.ICEServer{URLs: urls})
		}
	}
}

// WithGatherTimeout bounds ICE gathering when answering an offer.
func WithGatherTimeout(d time.Duration) Option {
	return func(m *Manager) { m.gatherTimeout = d }
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:        logger,
		rooms:         make(map[string]*Room),
		gatherTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnJoin registers a callback run after a participant joins a room.
func (m *Manager) OnJoin(fn func(r *Room, p Participant)) {
	m.mu.Lock()
	m.onJoin = append(m.onJoin, fn)
	m.mu.Unlock()
}

// OnEmpty registers a callback run after the last participant leaves a room.
// The room is closed by then.
func (m *Manager) OnEmpty(fn func(r *Room)) {
	m.mu.Lock()
	m.onEmpty = append(m.onEmpty, fn)
	m.mu.Unlock()
}

// Get returns an open room.
func (m *Manager) Get(name string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Room returns the named room, creating it if needed.
func (m *Manager) Room(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[name]
	if !ok {
		r = newRoom(name, m.logger)
		m.rooms[name] = r
	}
	return r
}

// Rooms returns every open room, sorted by name.
func (m *Manager) Rooms() []Info {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of open rooms.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Join adds p to the named room and runs the OnJoin callbacks.
func (m *Manager) Join(name string, p Participant) (*Room, error) {
	var (
		r   *Room
		err error
	)
	// A room that just emptied may still be in the map for a moment.
	for attempt := 0; attempt < 2; attempt++ {
		r = m.Room(name)
		if err = r.join(p); !errors.Is(err, ErrClosed) {
			break
		}
		m.remove(r)
	}
	if err != nil {
		return nil, err
	}
	m.joins.Add(1)

	m.mu.RLock()
	fns := m.onJoin
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(r, p)
	}
	return r, nil
}

// Leave removes identity from r. When r becomes empty it is closed, removed
// and the OnEmpty callbacks run.
func (m *Manager) Leave(r *Room, identity string) {
	remaining, ok := r.leave(identity)
	if !ok {
		return
	}
	m.leaves.Add(1)
	if remaining > 0 {
		return
	}

	r.close()
	m.remove(r)

	m.mu.RLock()
	fns := m.onEmpty
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(r)
	}
}

func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	if cur, ok := m.rooms[r.name]; ok && cur == r {
		delete(m.rooms, r.name)
	}
	m.mu.Unlock()
}

// Close closes every room without running OnEmpty.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
}

// Stats contains manager statistics
type Stats struct {
	Rooms  int    `json:"rooms"`
	Joins  uint64 `json:"joins"`
	Leaves uint64 `json:"leaves"`
}

// GetStats returns manager statistics
func (m *Manager) GetStats() Stats {
	return Stats{
		Rooms:  m.Len(),
		Joins:  m.joins.Load(),
		Leaves: m.leaves.Load(),
	}
}
