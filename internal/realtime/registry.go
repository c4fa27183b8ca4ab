// Package realtime delivers bus events to connected websocket clients.
package realtime

import (
	"sync"

	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/monitoring"

	"github.com/gofrs/uuid"
)

// Channel is one live client connection. Send must be safe for concurrent
// use; Done is closed once the peer has gone away.
type Channel interface {
	Send(payload []byte) error
	Done() <-chan struct{}
}

// Registry maps a user id to at most one live channel. Registering again for
// the same id replaces the previous entry without closing it.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Channel
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]Channel)}
}

func (r *Registry) Register(userID uuid.UUID, ch Channel) {
	r.mu.Lock()
	_, replaced := r.conns[userID]
	r.conns[userID] = ch
	n := len(r.conns)
	r.mu.Unlock()

	monitoring.WebSocketConnections.Set(float64(n))
	logging.Info().Str("user_id", userID.String()).Bool("replaced", replaced).Msg("websocket connected")
}

// Unregister removes whatever channel userID holds. No-op when absent.
func (r *Registry) Unregister(userID uuid.UUID) {
	r.mu.Lock()
	_, ok := r.conns[userID]
	delete(r.conns, userID)
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		monitoring.WebSocketConnections.Set(float64(n))
		logging.Info().Str("user_id", userID.String()).Msg("websocket disconnected")
	}
}

// Release removes userID only while it still maps to ch, so a connection
// that was superseded cannot evict its replacement.
func (r *Registry) Release(userID uuid.UUID, ch Channel) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	if !ok || cur != ch {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	n := len(r.conns)
	r.mu.Unlock()

	monitoring.WebSocketConnections.Set(float64(n))
	logging.Info().Str("user_id", userID.String()).Msg("websocket disconnected")
	return true
}

// Owns reports whether ch is the registered channel for userID.
func (r *Registry) Owns(userID uuid.UUID, ch Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.conns[userID]
	return ok && cur == ch
}

// SendTo delivers payload to userID if connected. A failed write counts as a
// disconnect: the channel is released and the error is not returned.
func (r *Registry) SendTo(userID uuid.UUID, payload []byte) bool {
	r.mu.RLock()
	ch, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := ch.Send(payload); err != nil {
		monitoring.NotificationsDelivered.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Str("user_id", userID.String()).Msg("send failed, dropping connection")
		r.Release(userID, ch)
		return false
	}
	monitoring.NotificationsDelivered.WithLabelValues("delivered").Inc()
	return true
}

// SendOwned delivers payload to ch only while ch is still the registered
// channel for userID. It reports false when ch was superseded or the write
// failed; a failed write releases ch.
func (r *Registry) SendOwned(userID uuid.UUID, ch Channel, payload []byte) bool {
	if !r.Owns(userID, ch) {
		return false
	}
	if err := ch.Send(payload); err != nil {
		monitoring.NotificationsDelivered.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Str("user_id", userID.String()).Msg("send failed, dropping connection")
		r.Release(userID, ch)
		return false
	}
	monitoring.NotificationsDelivered.WithLabelValues("delivered").Inc()
	return true
}

// Broadcast sends payload to every connected user and returns how many
// writes succeeded. Failed channels are released after the sweep.
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.RLock()
	snapshot := make(map[uuid.UUID]Channel, len(r.conns))
	for id, ch := range r.conns {
		snapshot[id] = ch
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []uuid.UUID
	for id, ch := range snapshot {
		if err := ch.Send(payload); err != nil {
			logging.Warn().Err(err).Str("user_id", id.String()).Msg("broadcast failed")
			failed = append(failed, id)
			continue
		}
		delivered++
	}

	for _, id := range failed {
		r.Release(id, snapshot[id])
	}
	monitoring.NotificationsDelivered.WithLabelValues("delivered").Add(float64(delivered))
	monitoring.NotificationsDelivered.WithLabelValues("failed").Add(float64(len(failed)))
	return delivered
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Connected(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}
