// Package fanout carries persisted messages between server instances so the
// instance holding the recipient's socket can push it.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
	"go.uber.org/zap"
)

// Bus is a broadcast channel: every subscriber sees every published payload.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe streams payloads until ctx is done or the bus fails, then
	// closes the returned channel.
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}

type Envelope struct {
	Thread  chat.Thread  `json:"thread"`
	Message chat.Message `json:"message"`
}

var ErrSubscriptionClosed = errors.New("fanout subscription closed")

// Publisher implements chat.Notifier by queueing messages for the bus.
type Publisher struct {
	bus     Bus
	queue   chan Envelope
	timeout time.Duration
	log     *zap.Logger
}

func NewPublisher(bus Bus, log *zap.Logger, queueSize int, timeout time.Duration) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		bus:     bus,
		queue:   make(chan Envelope, queueSize),
		timeout: timeout,
		log:     log.Named("fanout"),
	}
}

// Forward never blocks; a full queue drops the message from real-time
// delivery (it stays in history).
func (p *Publisher) Forward(t chat.Thread, m chat.Message) {
	select {
	case p.queue <- Envelope{Thread: t, Message: m}:
	default:
		metrics.FanoutPublishes.WithLabelValues(metrics.Dropped).Inc()
		p.log.Warn("publish queue full, dropping", zap.String("message_id", m.ID))
	}
}

// Run drains the queue onto the bus until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-p.queue:
			p.publish(ctx, env)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		metrics.FanoutPublishes.WithLabelValues(metrics.Failed).Inc()
		p.log.Error("marshal envelope", zap.String("message_id", env.Message.ID), zap.Error(err))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.bus.Publish(pctx, body); err != nil {
		metrics.FanoutPublishes.WithLabelValues(metrics.Failed).Inc()
		p.log.Warn("publish failed",
			zap.String("chat_id", env.Thread.ID),
			zap.String("message_id", env.Message.ID),
			zap.Error(err),
		)
		return
	}
	metrics.FanoutPublishes.WithLabelValues(metrics.Published).Inc()
}

// Relay hands every envelope seen on the bus to the local notifier (the
// presence router). It returns nil when ctx is done and
// ErrSubscriptionClosed when the bus goes away first.
func Relay(ctx context.Context, bus Bus, to chat.Notifier, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("fanout")

	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	log.Info("relay subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			var env Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				log.Warn("bad envelope", zap.Error(err))
				continue
			}
			to.Forward(env.Thread, env.Message)
		}
	}
}
