package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Skotchmaster/incident_desk/internal/metrics"
)

const DefaultBuffer = 32

var ErrJoinDenied = errors.New("join denied")

// Message is the wire envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is one live client. Its channel is closed on Disconnect.
type Conn struct {
	UserID uuid.UUID
	send   chan Message
}

func (c *Conn) Messages() <-chan Message { return c.send }

// Registry tracks live connections and the user channel each one joined.
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	byUser map[uuid.UUID]map[*Conn]struct{}
	buffer int

	metrics *metrics.Metrics
}

func NewRegistry(buffer int, m *metrics.Metrics) *Registry {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Registry{
		conns:   make(map[*Conn]struct{}),
		byUser:  make(map[uuid.UUID]map[*Conn]struct{}),
		buffer:  buffer,
		metrics: m,
	}
}

// Connect registers a connection for an authenticated user and joins it to
// that user's channel.
func (r *Registry) Connect(userID uuid.UUID) *Conn {
	c := &Conn{UserID: userID, send: make(chan Message, r.buffer)}

	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.joinLocked(c)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RealtimeConnections.Inc()
	}
	return c
}

func (r *Registry) joinLocked(c *Conn) {
	set, ok := r.byUser[c.UserID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.byUser[c.UserID] = set
	}
	set[c] = struct{}{}
}

// Join is only accepted for the connection's own user channel.
func (r *Registry) Join(c *Conn, userID uuid.UUID) error {
	if userID != c.UserID {
		return ErrJoinDenied
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.conns[c]; !live {
		return ErrJoinDenied
	}
	r.joinLocked(c)
	return nil
}

func (r *Registry) Disconnect(c *Conn) {
	r.mu.Lock()
	if _, live := r.conns[c]; !live {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c)
	if set, ok := r.byUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	close(c.send)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RealtimeConnections.Dec()
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast returns how many connections accepted the message.
func (r *Registry) Broadcast(msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for c := range r.conns {
		if r.offer(c, msg) {
			n++
		}
	}
	return n
}

func (r *Registry) SendToUser(userID uuid.UUID, msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for c := range r.byUser[userID] {
		if r.offer(c, msg) {
			n++
		}
	}
	return n
}

// Send delivers to a single connection, if it is still registered.
func (r *Registry) Send(c *Conn, msg Message) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, live := r.conns[c]; !live {
		return false
	}
	return r.offer(c, msg)
}

// offer never blocks; a full buffer drops the message. Callers hold r.mu.
func (r *Registry) offer(c *Conn, msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		if r.metrics != nil {
			r.metrics.RealtimeDropped.Inc()
		}
		return false
	}
}
