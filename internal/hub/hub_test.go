package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("unreachable")

type fakeSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *fakeSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *fakeSink) messages() []Message {
	var out []Message
	for _, ev := range s.all() {
		if m, ok := ev.Data.(Message); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSink) chat() []Message {
	var out []Message
	for _, m := range s.messages() {
		if m.Sender != ServerSender {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSink) lastNamespaceCount(t *testing.T) int {
	t.Helper()
	events := s.all()
	for i := len(events) - 1; i >= 0; i-- {
		if c, ok := events[i].Data.(NamespaceCount); ok {
			return c.Count
		}
	}
	t.Fatal("no userCountUpdate received")
	return -1
}

func (s *fakeSink) lastRoomCount(t *testing.T, room string) int {
	t.Helper()
	events := s.all()
	for i := len(events) - 1; i >= 0; i-- {
		if c, ok := events[i].Data.(RoomCount); ok && c.Room == room {
			return c.Count
		}
	}
	t.Fatalf("no roomCountUpdate for %q received", room)
	return -1
}

func newTestHub() *Hub {
	logger, _ := logtest.NewNullLogger()
	fixed := time.Date(2025, 11, 7, 12, 34, 56, 0, time.UTC)
	return New(WithLogger(logger), WithClock(func() time.Time { return fixed }))
}

func TestAttachAssignsDefaultNames(t *testing.T) {
	h := newTestHub()

	first := h.Attach("/general", &fakeSink{})
	second := h.Attach("/general", &fakeSink{})
	other := h.Attach("/sports", &fakeSink{})

	info, ok := h.Lookup(first.ID())
	require.True(t, ok)
	assert.Equal(t, "general_User1", info.Name)
	assert.Equal(t, "/general", info.Namespace)
	assert.Empty(t, info.Room)

	info, _ = h.Lookup(second.ID())
	assert.Equal(t, "general_User2", info.Name)

	info, _ = h.Lookup(other.ID())
	assert.Equal(t, "sports_User1", info.Name)
}

func TestDefaultNamesAreNotReused(t *testing.T) {
	h := newTestHub()

	first := h.Attach("/general", &fakeSink{})
	h.Detach(first.ID())
	next := h.Attach("/general", &fakeSink{})

	info, ok := h.Lookup(next.ID())
	require.True(t, ok)
	assert.Equal(t, "general_User2", info.Name)
}

func TestAttachAnnouncesNamespaceCount(t *testing.T) {
	h := newTestHub()
	a := &fakeSink{}
	b := &fakeSink{}

	h.Attach("/general", a)
	assert.Equal(t, 1, a.lastNamespaceCount(t))

	h.Attach("/general", b)
	assert.Equal(t, 2, a.lastNamespaceCount(t))
	assert.Equal(t, 2, b.lastNamespaceCount(t))

	welcome := b.messages()[0]
	assert.Equal(t, ServerSender, welcome.Sender)
	assert.Contains(t, welcome.Text, "Welcome general_User2 to /general")

	joined := a.messages()
	assert.Equal(t, "general_User2 joined the /general chat.", joined[len(joined)-1].Text)
}

func TestNamespacesAreIsolated(t *testing.T) {
	h := newTestHub()
	general := &fakeSink{}
	sports := &fakeSink{}

	g := h.Attach("/general", general)
	h.Attach("/sports", sports)
	sports.reset()

	require.NoError(t, h.JoinRoom(g.ID(), "r1"))
	require.NoError(t, h.ChatMessage(g.ID(), "hello"))
	h.Detach(g.ID())

	assert.Empty(t, sports.all())
	assert.Equal(t, 1, h.NamespaceCount("/sports"))
	assert.Equal(t, 0, h.NamespaceCount("/general"))
}

func TestJoinRoomSwitchesMembership(t *testing.T) {
	h := newTestHub()
	c := h.Attach("/general", &fakeSink{})

	require.NoError(t, h.JoinRoom(c.ID(), "a"))
	require.NoError(t, h.JoinRoom(c.ID(), "b"))

	assert.Empty(t, h.RoomMembers("/general", "a"))
	assert.Equal(t, []string{c.ID()}, h.RoomMembers("/general", "b"))
	assert.Equal(t, 0, h.RoomCount("/general", "a"))
	assert.Equal(t, 1, h.RoomCount("/general", "b"))

	info, _ := h.Lookup(c.ID())
	assert.Equal(t, "b", info.Room)
}

func TestJoinRoomTwiceIsIdempotent(t *testing.T) {
	h := newTestHub()
	sink := &fakeSink{}
	c := h.Attach("/general", sink)

	require.NoError(t, h.JoinRoom(c.ID(), "r1"))
	before := sink.lastRoomCount(t, "r1")
	require.NoError(t, h.JoinRoom(c.ID(), "r1"))

	assert.Equal(t, []string{c.ID()}, h.RoomMembers("/general", "r1"))
	assert.Equal(t, 1, h.RoomCount("/general", "r1"))
	assert.Equal(t, before, sink.lastRoomCount(t, "r1"))
}

func TestJoinRoomRejectsEmptyRoom(t *testing.T) {
	h := newTestHub()
	c := h.Attach("/general", &fakeSink{})

	err := h.JoinRoom(c.ID(), "")
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestJoinRoomAnnouncesToBothRooms(t *testing.T) {
	h := newTestHub()
	mover := &fakeSink{}
	stayer := &fakeSink{}
	target := &fakeSink{}

	m := h.Attach("/general", mover)
	s := h.Attach("/general", stayer)
	tg := h.Attach("/general", target)
	require.NoError(t, h.JoinRoom(m.ID(), "a"))
	require.NoError(t, h.JoinRoom(s.ID(), "a"))
	require.NoError(t, h.JoinRoom(tg.ID(), "b"))
	assert.Equal(t, 2, stayer.lastRoomCount(t, "a"))

	stayer.reset()
	target.reset()
	require.NoError(t, h.JoinRoom(m.ID(), "b"))

	assert.Equal(t, 1, stayer.lastRoomCount(t, "a"))
	assert.Equal(t, 2, target.lastRoomCount(t, "b"))
	assert.Equal(t, 2, mover.lastRoomCount(t, "b"))

	left := stayer.messages()
	require.NotEmpty(t, left)
	assert.Equal(t, `general_User1 has left room "a".`, left[0].Text)

	joined := target.messages()
	require.NotEmpty(t, joined)
	assert.Equal(t, `general_User1 has joined room "b".`, joined[0].Text)
}

func TestJoinNeverExposesIntermediateMembership(t *testing.T) {
	h := newTestHub()
	c := h.Attach("/general", &fakeSink{})
	require.NoError(t, h.JoinRoom(c.ID(), "a"))

	stop := make(chan struct{})
	var violations int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ns, _ := h.namespaces.lookup("/general")
			ns.mu.Lock()
			total := ns.rooms.count("a") + ns.rooms.count("b")
			ns.mu.Unlock()
			if total != 1 {
				violations++
			}
		}
	}()

	for i := 0; i < 200; i++ {
		room := "a"
		if i%2 == 0 {
			room = "b"
		}
		require.NoError(t, h.JoinRoom(c.ID(), room))
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, violations)
}

func TestChatMessageScenario(t *testing.T) {
	h := newTestHub()
	xs := &fakeSink{}
	ys := &fakeSink{}

	x := h.Attach("/general", xs)
	assert.Equal(t, 1, xs.lastNamespaceCount(t))
	require.NoError(t, h.JoinRoom(x.ID(), "r1"))
	assert.Equal(t, 1, xs.lastRoomCount(t, "r1"))

	y := h.Attach("/general", ys)
	require.NoError(t, h.JoinRoom(y.ID(), "r1"))
	assert.Equal(t, 2, xs.lastRoomCount(t, "r1"))
	assert.Equal(t, 2, ys.lastRoomCount(t, "r1"))

	require.NoError(t, h.ChatMessage(x.ID(), "hi"))
	for _, sink := range []*fakeSink{xs, ys} {
		chat := sink.chat()
		require.Len(t, chat, 1)
		assert.Equal(t, "general_User1", chat[0].Sender)
		assert.Equal(t, "hi", chat[0].Text)
		assert.False(t, chat[0].Timestamp.IsZero())
	}

	namespaceID, room, ok := h.Detach(y.ID())
	require.True(t, ok)
	assert.Equal(t, "/general", namespaceID)
	assert.Equal(t, "r1", room)
	assert.Equal(t, 1, xs.lastRoomCount(t, "r1"))
	assert.Equal(t, 1, xs.lastNamespaceCount(t))
}

func TestChatMessageOutsideRoom(t *testing.T) {
	h := newTestHub()
	sender := &fakeSink{}
	bystander := &fakeSink{}

	c := h.Attach("/general", sender)
	b := h.Attach("/general", bystander)
	require.NoError(t, h.JoinRoom(b.ID(), "r1"))
	sender.reset()
	bystander.reset()

	err := h.ChatMessage(c.ID(), "anyone?")
	assert.ErrorIs(t, err, ErrNotInRoom)

	events := sender.all()
	require.Len(t, events, 1)
	notice := events[0].Data.(Message)
	assert.Equal(t, ServerSender, notice.Sender)
	assert.Equal(t, NoticeNotInRoom, notice.Code)
	assert.Empty(t, bystander.all())
}

func TestChatMessageUsesDisplayName(t *testing.T) {
	h := newTestHub()
	sink := &fakeSink{}
	c := h.Attach("/general", sink)

	name, changed := h.SetDisplayName(c.ID(), "  alice  ")
	assert.True(t, changed)
	assert.Equal(t, "alice", name)
	require.NoError(t, h.JoinRoom(c.ID(), "r1"))
	require.NoError(t, h.ChatMessage(c.ID(), "hello"))

	chat := sink.chat()
	require.Len(t, chat, 1)
	assert.Equal(t, "alice", chat[0].Sender)
}

func TestSetDisplayName(t *testing.T) {
	h := newTestHub()
	c := h.Attach("/general", &fakeSink{})

	name, changed := h.SetDisplayName(c.ID(), "   ")
	assert.False(t, changed)
	assert.Equal(t, "general_User1", name)

	name, changed = h.SetDisplayName(c.ID(), "bob")
	assert.True(t, changed)
	assert.Equal(t, "bob", name)

	name, changed = h.SetDisplayName(c.ID(), "carol")
	assert.False(t, changed)
	assert.Equal(t, "bob", name)
}

func TestDetachRemovesFromRoomAndNamespaceOnce(t *testing.T) {
	h := newTestHub()
	watcher := &fakeSink{}
	w := h.Attach("/general", watcher)
	c := h.Attach("/general", &fakeSink{})
	require.NoError(t, h.JoinRoom(w.ID(), "r1"))
	require.NoError(t, h.JoinRoom(c.ID(), "r1"))

	_, room, ok := h.Detach(c.ID())
	assert.True(t, ok)
	assert.Equal(t, "r1", room)
	_, _, ok = h.Detach(c.ID())
	assert.False(t, ok)

	assert.Equal(t, 1, h.NamespaceCount("/general"))
	assert.Equal(t, 1, h.RoomCount("/general", "r1"))
	assert.Equal(t, 1, watcher.lastNamespaceCount(t))
	assert.Equal(t, 1, watcher.lastRoomCount(t, "r1"))

	_, ok = h.Lookup(c.ID())
	assert.False(t, ok)
}

func TestUnknownConnectionIsNoop(t *testing.T) {
	h := newTestHub()

	assert.NoError(t, h.JoinRoom("missing", "r1"))
	assert.NoError(t, h.ChatMessage("missing", "hi"))
	assert.NoError(t, h.SendTo("missing", MessageEvent("x", "y", time.Now())))
	name, changed := h.SetDisplayName("missing", "bob")
	assert.Empty(t, name)
	assert.False(t, changed)
	_, _, ok := h.Detach("missing")
	assert.False(t, ok)
}

func TestOperationsAfterDetachAreNoops(t *testing.T) {
	h := newTestHub()
	sink := &fakeSink{}
	c := h.Attach("/general", sink)
	h.Detach(c.ID())
	sink.reset()

	assert.NoError(t, h.JoinRoom(c.ID(), "r1"))
	assert.NoError(t, h.ChatMessage(c.ID(), "hi"))
	assert.Empty(t, sink.all())
	assert.Equal(t, 0, h.RoomCount("/general", "r1"))
}

func TestBroadcastRoomWithoutMembers(t *testing.T) {
	h := newTestHub()
	h.Attach("/general", &fakeSink{})

	report := h.BroadcastRoom("/general", "empty", MessageEvent("x", "y", time.Now()), Options{})
	assert.Zero(t, report.Attempted)
	assert.Zero(t, report.Delivered)
	assert.NoError(t, report.Err())

	report = h.BroadcastRoom("/nowhere", "empty", MessageEvent("x", "y", time.Now()), Options{})
	assert.Zero(t, report.Attempted)
}

func TestBroadcastNamespaceExcludeSender(t *testing.T) {
	h := newTestHub()
	a := &fakeSink{}
	b := &fakeSink{}
	ca := h.Attach("/general", a)
	h.Attach("/general", b)
	a.reset()
	b.reset()

	ev := NoticeEvent("", "ping", time.Now())
	report := h.BroadcastNamespace("/general", ev, Options{Sender: ca.ID(), ExcludeSender: true})
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, a.all())
	assert.Len(t, b.all(), 1)

	report = h.BroadcastNamespace("/general", ev, Options{Sender: ca.ID()})
	assert.Equal(t, 2, report.Delivered)
}

func TestBroadcastContinuesPastFailedRecipients(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := New(WithLogger(logger))

	healthy := []*fakeSink{{}, {}}
	broken := &fakeSink{}
	for _, s := range []*fakeSink{healthy[0], broken, healthy[1]} {
		c := h.Attach("/machines", s)
		require.NoError(t, h.JoinRoom(c.ID(), "machineA"))
	}
	broken.err = errUnreachable
	hook.Reset()

	report := h.BroadcastRoom("/machines", "machineA", NoticeEvent("", "reading", time.Now()), Options{})

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Delivered)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Err(), errUnreachable)
	for _, s := range healthy {
		msgs := s.messages()
		assert.Equal(t, "reading", msgs[len(msgs)-1].Text)
	}

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 3, h.RoomCount("/machines", "machineA"))
}

func TestSendToReportsFailure(t *testing.T) {
	h := newTestHub()
	sink := &fakeSink{}
	c := h.Attach("/general", sink)
	sink.err = errUnreachable

	err := h.SendTo(c.ID(), NoticeEvent("", "direct", time.Now()))
	assert.ErrorIs(t, err, errUnreachable)
}

func TestCountsMatchLiveMembership(t *testing.T) {
	rec := &countRecorder{}
	logger, _ := logtest.NewNullLogger()
	h := New(WithLogger(logger), WithObserver(rec))

	const clients = 20
	var wg sync.WaitGroup
	ids := make(chan string, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := h.Attach("/general", &fakeSink{})
			_ = h.JoinRoom(c.ID(), fmt.Sprintf("r%d", i%3))
			_ = h.JoinRoom(c.ID(), fmt.Sprintf("r%d", (i+1)%3))
			ids <- c.ID()
		}(i)
	}
	wg.Wait()
	close(ids)

	total := 0
	for r := 0; r < 3; r++ {
		total += h.RoomCount("/general", fmt.Sprintf("r%d", r))
	}
	assert.Equal(t, clients, total)
	assert.Equal(t, clients, h.NamespaceCount("/general"))

	n := 0
	for id := range ids {
		if n%2 == 0 {
			h.Detach(id)
		}
		n++
	}
	assert.Equal(t, clients/2, h.NamespaceCount("/general"))
	assert.Equal(t, clients/2, rec.namespace("/general"))
	for r := 0; r < 3; r++ {
		room := fmt.Sprintf("r%d", r)
		assert.Equal(t, h.RoomCount("/general", room), rec.room("/general", room))
	}
}

func TestStats(t *testing.T) {
	h := newTestHub()
	a := h.Attach("/general", &fakeSink{})
	h.Attach("/general", &fakeSink{})
	b := h.Attach("/sports", &fakeSink{})
	require.NoError(t, h.JoinRoom(a.ID(), "r1"))
	require.NoError(t, h.JoinRoom(b.ID(), "r1"))

	assert.Equal(t, Stats{Namespaces: 2, Rooms: 2, Connections: 3}, h.Stats())
}

type countRecorder struct {
	mu         sync.Mutex
	namespaces map[string]int
	rooms      map[string]int
}

func (r *countRecorder) NamespaceCount(ns string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.namespaces == nil {
		r.namespaces = make(map[string]int)
	}
	r.namespaces[ns] = count
}

func (r *countRecorder) RoomCount(ns, room string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms == nil {
		r.rooms = make(map[string]int)
	}
	r.rooms[ns+"/"+room] = count
}

func (r *countRecorder) Delivered(string, string, int) {}
func (r *countRecorder) DeliveryFailed(string, string) {}

func (r *countRecorder) namespace(ns string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namespaces[ns]
}

func (r *countRecorder) room(ns, room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[ns+"/"+room]
}
