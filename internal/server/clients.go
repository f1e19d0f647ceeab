// Package server tracks live WebSocket clients and their pump goroutines so
// the service can drain them on shutdown.
package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// clientSet owns every connected Client and the goroutines serving it.
type clientSet struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      conc.WaitGroup
	log     logrus.FieldLogger
}

func newClientSet(log logrus.FieldLogger) *clientSet {
	return &clientSet{
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

// register attaches the client to the hub and starts its pumps. It returns
// false once shutdown has begun.
func (s *clientSet) register(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}

	c.attach()
	s.clients[c] = struct{}{}
	c.log.Infof("Client registered from %s. Total clients: %d", c.addr, len(s.clients))

	s.wg.Go(c.writePump)
	s.wg.Go(func() {
		c.readPump()
		s.remove(c)
	})
	return true
}

func (s *clientSet) remove(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.log.Infof("Client unregistered from %s. Total clients: %d", c.addr, len(s.clients))
}

func (s *clientSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// shutdown closes every connection and waits for the pumps to exit, or for
// ctx to expire.
func (s *clientSet) shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.log.Infof("Shutting down %d client connections...", len(clients))
	for _, c := range clients {
		c.closeConnection()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Client shutdown completed successfully")
		return nil
	case <-ctx.Done():
		s.log.Warn("Client shutdown timeout reached, some goroutines may still be running")
		return ctx.Err()
	}
}
