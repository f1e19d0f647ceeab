package hub

// Observer is notified of derived counts and delivery outcomes. Calls are made with
// the namespace lock held and must return quickly.
type Observer interface {
	NamespaceCount(namespace string, count int)
	RoomCount(namespace, room string, count int)
	Delivered(namespace, event string, n int)
	DeliveryFailed(namespace, event string)
}

type nopObserver struct{}

func (nopObserver) NamespaceCount(string, int) {}
func (nopObserver) RoomCount(string, string, int) {}
func (nopObserver) Delivered(string, string, int) {}
func (nopObserver) DeliveryFailed(string, string) {}

// presence derives membership counts from the live sets and announces them.
type presence struct {
	router   *router
	observer Observer
}

// onMembershipChanged recomputes the count of the scope that changed and emits it
// to that scope: the whole namespace when room is empty, the room otherwise.
// ns.mu must be held.
func (p *presence) onMembershipChanged(ns *namespace, room string) {
	if room == "" {
		count := ns.memberCount()
		p.observer.NamespaceCount(ns.id, count)
		p.router.deliver(ns.id, ns.snapshot(nil), namespaceCountEvent(count))
		return
	}

	count := ns.rooms.count(room)
	p.observer.RoomCount(ns.id, room, count)
	p.router.deliver(ns.id, ns.rooms.members(room, nil), roomCountEvent(room, count))
}
