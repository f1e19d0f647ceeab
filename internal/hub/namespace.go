package hub

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// namespace is an isolated broadcast domain. mu serializes every membership change,
// every count derived from it and the fan-out of the events that report it.
type namespace struct {
	id string

	mu      sync.Mutex
	members map[string]*Conn
	rooms   *roomIndex
	seq     int
}

func newNamespace(id string) *namespace {
	return &namespace{
		id:      id,
		members: make(map[string]*Conn),
		rooms:   newRoomIndex(),
	}
}

// The methods below expect ns.mu to be held.

func (ns *namespace) nextDefaultName() string {
	ns.seq++
	return fmt.Sprintf("%s_User%d", strings.TrimPrefix(ns.id, "/"), ns.seq)
}

func (ns *namespace) addMember(c *Conn) {
	ns.members[c.id] = c
}

func (ns *namespace) removeMember(c *Conn) bool {
	if _, ok := ns.members[c.id]; !ok {
		return false
	}
	delete(ns.members, c.id)
	return true
}

func (ns *namespace) memberCount() int {
	return len(ns.members)
}

// snapshot copies the member set, leaving out except when it is non-nil.
func (ns *namespace) snapshot(except *Conn) []*Conn {
	out := make([]*Conn, 0, len(ns.members))
	for _, c := range ns.members {
		if c == except {
			continue
		}
		out = append(out, c)
	}
	return out
}

type namespaceTable struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
}

func newNamespaceTable() *namespaceTable {
	return &namespaceTable{namespaces: make(map[string]*namespace)}
}

func (t *namespaceTable) getOrCreate(id string) *namespace {
	t.mu.RLock()
	ns, ok := t.namespaces[id]
	t.mu.RUnlock()
	if ok {
		return ns
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ns, ok = t.namespaces[id]; ok {
		return ns
	}
	ns = newNamespace(id)
	t.namespaces[id] = ns
	return ns
}

func (t *namespaceTable) lookup(id string) (*namespace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ns, ok := t.namespaces[id]
	return ns, ok
}

func (t *namespaceTable) all() []*namespace {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*namespace, 0, len(t.namespaces))
	for _, ns := range t.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
