// Package telemetry simulates machine metric streams and publishes each stream to
// the room named after its machine.
package telemetry

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/roomcast/internal/hub"
)

// Range is a uniform interval [Min, Min+Span).
type Range struct {
	Min  float64
	Span float64
}

func (r Range) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*r.Span
}

// Profile describes one simulated machine. Room is the room its readings go to.
type Profile struct {
	Room     string
	RPM      Range
	Torque   Range
	Pressure Range
}

// DefaultProfiles returns a medium-range machine A and a high-range machine B.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Room:     "machineA",
			RPM:      Range{Min: 1500, Span: 500},
			Torque:   Range{Min: 200, Span: 50},
			Pressure: Range{Min: 5, Span: 2},
		},
		{
			Room:     "machineB",
			RPM:      Range{Min: 3500, Span: 1500},
			Torque:   Range{Min: 350, Span: 150},
			Pressure: Range{Min: 10, Span: 6},
		},
	}
}

// Reading is the payload of a machineData event.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	RPM       string    `json:"RPM"`
	Torque    string    `json:"Torque"`
	Pressure  string    `json:"Pressure"`
}

// Publisher is the part of the hub the simulator needs.
type Publisher interface {
	BroadcastRoom(namespace, room string, ev hub.Event, opts hub.Options) hub.DeliveryReport
}

// Simulator emits one reading per profile on every tick.
type Simulator struct {
	pub       Publisher
	namespace string
	interval  time.Duration
	profiles  []Profile
	rng       *rand.Rand
	now       func() time.Time
	log       logrus.FieldLogger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithProfiles replaces the default machine profiles.
func WithProfiles(profiles ...Profile) Option {
	return func(s *Simulator) { s.profiles = profiles }
}

// WithSeed makes the generated values deterministic.
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock overrides the reading timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Simulator) { s.log = log }
}

// New creates a simulator publishing to namespace every interval.
func New(pub Publisher, namespace string, interval time.Duration, opts ...Option) *Simulator {
	if interval <= 0 {
		interval = time.Second
	}
	s := &Simulator{
		pub:       pub,
		namespace: namespace,
		interval:  interval,
		profiles:  DefaultProfiles(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the namespace readings are published to.
func (s *Simulator) Namespace() string { return s.namespace }

// Rooms returns the rooms that receive readings, one per profile.
func (s *Simulator) Rooms() []string {
	rooms := make([]string, 0, len(s.profiles))
	for _, p := range s.profiles {
		rooms = append(rooms, p.Room)
	}
	return rooms
}

// Read produces one reading for p.
func (s *Simulator) Read(p Profile) Reading {
	return Reading{
		Timestamp: s.now().UTC(),
		RPM:       strconv.FormatFloat(p.RPM.sample(s.rng), 'f', 0, 64),
		Torque:    strconv.FormatFloat(p.Torque.sample(s.rng), 'f', 2, 64),
		Pressure:  strconv.FormatFloat(p.Pressure.sample(s.rng), 'f', 2, 64),
	}
}

// Tick publishes one reading to every profile's room. Rooms without members
// receive nothing.
func (s *Simulator) Tick() {
	for _, p := range s.profiles {
		reading := s.Read(p)
		report := s.pub.BroadcastRoom(s.namespace, p.Room, hub.Event{Name: hub.EventMachineData, Data: reading}, hub.Options{})
		s.log.WithFields(logrus.Fields{
			"namespace": s.namespace,
			"room":      p.Room,
			"delivered": report.Delivered,
		}).Debug("Emitted machine data")
	}
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithFields(logrus.Fields{
		"namespace": s.namespace,
		"interval":  s.interval,
		"rooms":     s.Rooms(),
	}).Info("Telemetry simulator started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Telemetry simulator stopped")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
