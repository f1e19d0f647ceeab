package hub

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Hub owns the connection registry, the namespace table and the broadcast router.
type Hub struct {
	namespaces *namespaceTable
	registry   *registry
	router     *router
	presence   *presence
	log        logrus.FieldLogger
	now        func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for lifecycle and delivery failure logs.
func WithLogger(log logrus.FieldLogger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithObserver registers an observer for counts and deliveries.
func WithObserver(o Observer) Option {
	return func(h *Hub) {
		if o != nil {
			h.router.observer = o
			h.presence.observer = o
		}
	}
}

// WithClock overrides the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		namespaces: newNamespaceTable(),
		registry:   newRegistry(),
		log:        logrus.StandardLogger(),
		now:        time.Now,
	}
	h.router = &router{observer: nopObserver{}}
	h.presence = &presence{router: h.router, observer: nopObserver{}}
	for _, opt := range opts {
		opt(h)
	}
	h.router.log = h.log
	return h
}

// Attach registers a connection under namespaceID, creating the namespace on first
// use, and gives it a default display name unique within the namespace. sink must
// not be nil.
func (h *Hub) Attach(namespaceID string, sink Sink) *Conn {
	ns := h.namespaces.getOrCreate(namespaceID)
	c := &Conn{id: uuid.NewString(), namespace: namespaceID, sink: sink}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	c.name = ns.nextDefaultName()
	ns.addMember(c)
	h.registry.add(c)

	h.log.WithFields(logrus.Fields{
		"namespace": ns.id,
		"conn":      c.id,
		"name":      c.name,
	}).Infof("Client attached. Namespace members: %d", ns.memberCount())

	now := h.now()
	h.router.deliver(ns.id, []*Conn{c},
		NoticeEvent("", fmt.Sprintf("Welcome %s to %s! Please join a room to start chatting.", c.name, ns.id), now))
	h.router.deliver(ns.id, ns.snapshot(c),
		NoticeEvent("", fmt.Sprintf("%s joined the %s chat.", c.name, ns.id), now))
	h.presence.onMembershipChanged(ns, "")

	return c
}

// JoinRoom moves the connection into room, leaving its current room first. Both
// steps complete before any event about either room is emitted. Joining the room
// the connection is already in changes nothing.
func (h *Hub) JoinRoom(id, room string) error {
	if room == "" {
		return ErrInvalidRoom
	}
	c, ok := h.registry.get(id)
	if !ok {
		return nil
	}
	ns := h.namespaces.getOrCreate(c.namespace)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if c.detached {
		return nil
	}

	now := h.now()
	if c.room == room {
		h.router.deliver(ns.id, []*Conn{c},
			NoticeEvent("", fmt.Sprintf("You are already in %q.", room), now))
		return nil
	}

	left := ns.rooms.join(c, room)

	fields := logrus.Fields{"namespace": ns.id, "conn": c.id, "room": room}
	if left != "" {
		fields["left"] = left
	}
	h.log.WithFields(fields).Infof("%s joined room", c.name)

	if left != "" {
		h.router.deliver(ns.id, ns.rooms.members(left, nil),
			NoticeEvent("", fmt.Sprintf("%s has left room %q.", c.name, left), now))
		h.presence.onMembershipChanged(ns, left)
	}

	h.router.deliver(ns.id, []*Conn{c},
		NoticeEvent("", fmt.Sprintf("You joined %q in %s as %q.", room, ns.id, c.name), now))
	h.router.deliver(ns.id, ns.rooms.members(room, c),
		NoticeEvent("", fmt.Sprintf("%s has joined room %q.", c.name, room), now))
	h.presence.onMembershipChanged(ns, room)

	return nil
}

// ChatMessage routes text to the sender's current room, sender included, authored
// by the sender's display name. A sender outside any room gets a notice and
// ErrNotInRoom; nobody else receives anything.
func (h *Hub) ChatMessage(id, text string) error {
	c, ok := h.registry.get(id)
	if !ok {
		return nil
	}
	ns := h.namespaces.getOrCreate(c.namespace)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if c.detached {
		return nil
	}

	now := h.now()
	if c.room == "" {
		h.router.deliver(ns.id, []*Conn{c},
			NoticeEvent(NoticeNotInRoom, "Please join a room before sending messages.", now))
		return ErrNotInRoom
	}

	report := h.router.deliver(ns.id, ns.rooms.members(c.room, nil), MessageEvent(c.name, text, now))
	h.log.WithFields(logrus.Fields{
		"namespace": ns.id,
		"room":      c.room,
		"conn":      c.id,
	}).Debugf("Broadcast message to %d of %d clients", report.Delivered, report.Attempted)
	return nil
}

// SetDisplayName replaces the generated name with the trimmed name. A blank name
// keeps the current one, and so does any call after the first successful override.
// It returns the effective name and whether it changed.
func (h *Hub) SetDisplayName(id, name string) (string, bool) {
	name = strings.TrimSpace(name)
	c, ok := h.registry.get(id)
	if !ok {
		return "", false
	}
	ns := h.namespaces.getOrCreate(c.namespace)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if c.detached {
		return "", false
	}
	if name == "" || c.named {
		return c.name, false
	}

	h.log.WithFields(logrus.Fields{"namespace": ns.id, "conn": c.id}).Infof("%s is now known as %s", c.name, name)
	c.name = name
	c.named = true
	return c.name, true
}

// Detach removes the connection from its room, its namespace and the registry,
// then announces the new counts. It returns the namespace and room the connection
// was last in; ok is false when the connection was unknown or already detached.
func (h *Hub) Detach(id string) (namespaceID, room string, ok bool) {
	c, found := h.registry.get(id)
	if !found {
		return "", "", false
	}
	ns := h.namespaces.getOrCreate(c.namespace)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if c.detached {
		return "", "", false
	}

	c.detached = true
	room = ns.rooms.leaveAll(c)
	ns.removeMember(c)
	h.registry.remove(c.id)

	h.log.WithFields(logrus.Fields{
		"namespace": ns.id,
		"conn":      c.id,
		"name":      c.name,
		"room":      room,
	}).Infof("Client detached. Namespace members: %d", ns.memberCount())

	if room != "" {
		h.presence.onMembershipChanged(ns, room)
	}
	h.router.deliver(ns.id, ns.snapshot(nil),
		NoticeEvent("", fmt.Sprintf("%s left the %s chat.", c.name, ns.id), h.now()))
	h.presence.onMembershipChanged(ns, "")

	return c.namespace, room, true
}

// Lookup returns a copy of the connection's record.
func (h *Hub) Lookup(id string) (ConnInfo, bool) {
	c, ok := h.registry.get(id)
	if !ok {
		return ConnInfo{}, false
	}
	ns := h.namespaces.getOrCreate(c.namespace)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if c.detached {
		return ConnInfo{}, false
	}
	return ConnInfo{ID: c.id, Namespace: c.namespace, Name: c.name, Room: c.room}, true
}

// NamespaceCount returns the live member count of a namespace.
func (h *Hub) NamespaceCount(namespaceID string) int {
	ns, ok := h.namespaces.lookup(namespaceID)
	if !ok {
		return 0
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.memberCount()
}

// RoomCount returns the live member count of a room; unknown rooms count zero.
func (h *Hub) RoomCount(namespaceID, room string) int {
	ns, ok := h.namespaces.lookup(namespaceID)
	if !ok {
		return 0
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.rooms.count(room)
}

// RoomMembers returns the IDs of the connections currently in room.
func (h *Hub) RoomMembers(namespaceID, room string) []string {
	ns, ok := h.namespaces.lookup(namespaceID)
	if !ok {
		return nil
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	members := ns.rooms.members(room, nil)
	ids := make([]string, 0, len(members))
	for _, c := range members {
		ids = append(ids, c.id)
	}
	return ids
}

// Stats is a summary of the hub's state.
type Stats struct {
	Namespaces  int `json:"namespaces"`
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Stats counts namespaces, occupied rooms and attached connections.
func (h *Hub) Stats() Stats {
	namespaces := h.namespaces.all()
	stats := Stats{Namespaces: len(namespaces)}
	for _, ns := range namespaces {
		ns.mu.Lock()
		stats.Rooms += ns.rooms.len()
		stats.Connections += ns.memberCount()
		ns.mu.Unlock()
	}
	return stats
}
