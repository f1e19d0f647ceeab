package hub

import "sync"

// Sink receives the events addressed to one connection. Send is called with the
// connection's namespace lock held and must not block.
type Sink interface {
	Send(Event) error
}

// Conn is the registry record of an attached connection. ID and Namespace never
// change; the remaining fields are guarded by the namespace lock.
type Conn struct {
	id        string
	namespace string
	sink      Sink

	name     string
	named    bool
	room     string
	detached bool
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// Namespace returns the namespace the connection was attached to.
func (c *Conn) Namespace() string { return c.namespace }

// ConnInfo is a point-in-time copy of a connection's record.
type ConnInfo struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Room      string `json:"room,omitempty"`
}

type registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*Conn)}
}

func (r *registry) add(c *Conn) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

func (r *registry) get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
