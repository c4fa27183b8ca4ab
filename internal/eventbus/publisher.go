package eventbus

import (
	"context"
	"errors"
	"time"

	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/logging"
	"flowtrack/backend/internal/monitoring"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	PublishTimeout   time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "event-publish",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		PublishTimeout:   3 * time.Second,
	}
}

// Publisher sends domain events to the bus on a best-effort basis. A failed
// or rejected publish is logged and counted, never returned: the mutation
// that produced the event has already committed.
type Publisher struct {
	bus     Bus
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
}

func NewPublisher(bus Bus, cfg BreakerConfig) *Publisher {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	threshold := cfg.FailureThreshold

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("event publish breaker changed state")
		},
	})

	return &Publisher{bus: bus, breaker: cb, timeout: cfg.PublishTimeout}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) {
	topic := string(e.Topic())

	payload, err := events.Encode(e)
	if err != nil {
		monitoring.EventsPublished.WithLabelValues(topic, "failure").Inc()
		logging.Error().Err(err).Str("event", string(e.Kind())).Msg("failed to encode event")
		return
	}

	// Detach from request cancellation: the caller may already be writing
	// its response.
	pctx := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, p.timeout)
		defer cancel()
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.bus.Publish(pctx, topic, payload)
	})
	switch {
	case err == nil:
		monitoring.EventsPublished.WithLabelValues(topic, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		monitoring.EventsPublished.WithLabelValues(topic, "rejected").Inc()
		logging.Warn().Str("topic", topic).Str("event", string(e.Kind())).Msg("event dropped, bus breaker open")
	default:
		monitoring.EventsPublished.WithLabelValues(topic, "failure").Inc()
		logging.Warn().Err(err).Str("topic", topic).Str("event", string(e.Kind())).Msg("failed to publish event")
	}
}

func (p *Publisher) State() string {
	return p.breaker.State().String()
}
