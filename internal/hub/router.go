package hub

import "github.com/sirupsen/logrus"

// Options narrows a broadcast.
type Options struct {
	// Sender is the ID of the originating connection.
	Sender string
	// ExcludeSender omits Sender from delivery.
	ExcludeSender bool
}

func (o Options) skip(c *Conn) bool {
	return o.ExcludeSender && o.Sender != "" && c.id == o.Sender
}

// router fans events out to connection sinks. Delivery is attempted for every
// target; a failing sink is logged and reported, never retried.
type router struct {
	log      logrus.FieldLogger
	observer Observer
}

func (r *router) deliver(ns string, targets []*Conn, ev Event) DeliveryReport {
	report := DeliveryReport{Attempted: len(targets)}
	for _, c := range targets {
		if err := c.sink.Send(ev); err != nil {
			report.Failures = append(report.Failures, DeliveryError{ConnID: c.id, Name: c.name, Err: err})
			r.observer.DeliveryFailed(ns, ev.Name)
			r.log.WithFields(logrus.Fields{
				"namespace": ns,
				"conn":      c.id,
				"event":     ev.Name,
			}).WithError(err).Warn("Delivery failed; skipping recipient")
			continue
		}
		report.Delivered++
	}
	r.observer.Delivered(ns, ev.Name, report.Delivered)
	return report
}

func filter(targets []*Conn, opts Options) []*Conn {
	if !opts.ExcludeSender {
		return targets
	}
	out := targets[:0]
	for _, c := range targets {
		if opts.skip(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SendTo delivers ev to a single connection. Unknown or detached connections are
// ignored.
func (h *Hub) SendTo(id string, ev Event) error {
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
	return h.router.deliver(ns.id, []*Conn{c}, ev).Err()
}

// BroadcastNamespace delivers ev to every member of the namespace. Broadcasting to
// a namespace that was never attached to is a no-op.
func (h *Hub) BroadcastNamespace(namespaceID string, ev Event, opts Options) DeliveryReport {
	ns, ok := h.namespaces.lookup(namespaceID)
	if !ok {
		return DeliveryReport{}
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	return h.router.deliver(ns.id, filter(ns.snapshot(nil), opts), ev)
}

// BroadcastRoom delivers ev to the members of one room. An empty or unknown room
// yields an empty report.
func (h *Hub) BroadcastRoom(namespaceID, room string, ev Event, opts Options) DeliveryReport {
	ns, ok := h.namespaces.lookup(namespaceID)
	if !ok {
		return DeliveryReport{}
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	return h.router.deliver(ns.id, filter(ns.rooms.members(room, nil), opts), ev)
}
