package realtime

import (
	"context"
	"errors"
	"time"

	"flowtrack/backend/internal/eventbus"
	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/logging"

	"github.com/gofrs/uuid"
)

type BridgeConfig struct {
	PollTimeout  time.Duration
	PollInterval time.Duration
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{PollTimeout: time.Second, PollInterval: 100 * time.Millisecond}
}

// Bridge runs one listener loop per connection, forwarding bus events to
// that connection's user through the registry.
type Bridge struct {
	bus      eventbus.Bus
	registry *Registry
	cfg      BridgeConfig
	topics   []string
}

func NewBridge(bus eventbus.Bus, registry *Registry, cfg BridgeConfig) *Bridge {
	def := DefaultBridgeConfig()
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	topics := make([]string, len(events.Topics))
	for i, t := range events.Topics {
		topics[i] = string(t)
	}
	return &Bridge{bus: bus, registry: registry, cfg: cfg, topics: topics}
}

// Serve registers ch for userID and forwards events until ctx is done, the
// peer disconnects, a send fails, or a newer connection supersedes ch. On
// return the subscription is closed and ch is no longer registered.
func (b *Bridge) Serve(ctx context.Context, userID uuid.UUID, ch Channel) error {
	b.registry.Register(userID, ch)
	defer b.registry.Release(userID, ch)

	sub, err := b.bus.Subscribe(ctx, b.topics...)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logging.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to unsubscribe")
		}
	}()

	for {
		if stop(ctx, ch) || !b.registry.Owns(userID, ch) {
			return nil
		}

		msg, err := sub.Poll(ctx, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, eventbus.ErrSubscriptionClosed) {
				return nil
			}
			logging.Error().Err(err).Str("user_id", userID.String()).Msg("notification listener stopped")
			return err
		}

		if msg != nil {
			// A superseded loop must not deliver to its replacement.
			if !b.registry.Owns(userID, ch) {
				return nil
			}
			b.forward(userID, ch, msg.Payload)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return nil
		case <-time.After(b.cfg.PollInterval):
		}
	}
}

func stop(ctx context.Context, ch Channel) bool {
	select {
	case <-ctx.Done():
		return true
	case <-ch.Done():
		return true
	default:
		return false
	}
}

// forward writes to ch itself rather than looking userID up again, so only
// the loop that owns the registry entry delivers.
func (b *Bridge) forward(userID uuid.UUID, ch Channel, payload []byte) {
	e, err := events.Decode(payload)
	if err != nil {
		// Foreign or loosely typed JSON passes through unchanged.
		if !errors.Is(err, events.ErrUnknownKind) {
			logging.Debug().Err(err).Msg("forwarding event that does not match its kind")
		}
		b.registry.SendOwned(userID, ch, payload)
		return
	}
	if !addressedTo(e, userID) {
		return
	}

	out, err := events.Encode(e)
	if err != nil {
		logging.Error().Err(err).Str("event", string(e.Kind())).Msg("failed to encode event")
		return
	}
	b.registry.SendOwned(userID, ch, out)
}

func addressedTo(e events.Event, userID uuid.UUID) bool {
	switch ev := e.(type) {
	case events.Notification:
		return ev.Recipient == nil || *ev.Recipient == userID
	case events.ProjectCreated, events.ProjectUpdated, events.ProjectDeleted,
		events.TaskCreated, events.TaskUpdated, events.TaskDeleted, events.TaskMoved:
		return true
	default:
		return false
	}
}
