// Package presence tracks which users hold a live connection on this instance
// and pushes new messages to them.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/metrics"
	"go.uber.org/zap"
)

const EventMessageNew = "message.new"

// Event is the frame pushed to a recipient.
type Event struct {
	Type    string       `json:"type"`
	Message chat.Message `json:"message"`
}

// Conn is a recipient's live connection. Implementations are compared by
// identity, so use pointer types.
type Conn interface {
	Push(ctx context.Context, ev Event) error
	Close() error
}

var ErrDeliveryFailed = errors.New("delivery failed")

type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

const (
	defaultQueueSize = 1024
	defaultWorkers   = 4
	defaultTimeout   = 5 * time.Second
)

type delivery struct {
	userID string
	event  Event
}

// Router maps user ids to their single active connection and delivers
// forwarded messages through a bounded queue drained by worker goroutines.
type Router struct {
	mu    sync.RWMutex
	conns map[string]Conn

	queue chan delivery
	opts  Options
	log   *zap.Logger
	wg    sync.WaitGroup
}

func NewRouter(log *zap.Logger, opts Options) *Router {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		conns: make(map[string]Conn),
		queue: make(chan delivery, opts.QueueSize),
		opts:  opts,
		log:   log.Named("presence"),
	}
}

// Start launches the delivery workers. They exit when ctx is done.
func (r *Router) Start(ctx context.Context) {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.work(ctx)
		}()
	}
}

// Wait blocks until every worker started by Start has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Register makes conn the user's active connection. A previous connection is
// closed.
func (r *Router) Register(userID string, conn Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	n := len(r.conns)
	r.mu.Unlock()

	metrics.OnlineConnections.Set(float64(n))
	if prev != nil && prev != conn {
		_ = prev.Close()
		r.log.Info("presence replaced", zap.String("user_id", userID))
		return
	}
	r.log.Debug("presence registered", zap.String("user_id", userID))
}

// Unregister removes and closes the user's connection. Unknown users are a no-op.
func (r *Router) Unregister(userID string) {
	r.mu.Lock()
	prev, ok := r.conns[userID]
	delete(r.conns, userID)
	n := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	metrics.OnlineConnections.Set(float64(n))
	_ = prev.Close()
	r.log.Debug("presence unregistered", zap.String("user_id", userID))
}

// Release closes conn and removes it only if it is still the user's active
// connection, so an ended socket never evicts its replacement.
func (r *Router) Release(userID string, conn Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	removed := ok && cur == conn
	if removed {
		delete(r.conns, userID)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if removed {
		metrics.OnlineConnections.Set(float64(n))
	}
	_ = conn.Close()
	return removed
}

func (r *Router) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll drops every registered connection, used on shutdown.
func (r *Router) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	metrics.OnlineConnections.Set(0)
}

// Forward queues m for the participant of t who did not send it. It never
// blocks: offline recipients and a full queue drop the delivery.
func (r *Router) Forward(t chat.Thread, m chat.Message) {
	recipient, ok := t.Counterpart(m.SenderID)
	if !ok {
		r.log.Warn("forward: sender not in thread",
			zap.String("chat_id", t.ID), zap.String("sender_id", m.SenderID))
		return
	}
	if !r.Online(recipient) {
		metrics.Deliveries.WithLabelValues(metrics.Offline).Inc()
		return
	}

	select {
	case r.queue <- delivery{userID: recipient, event: Event{Type: EventMessageNew, Message: m}}:
	default:
		metrics.Deliveries.WithLabelValues(metrics.Dropped).Inc()
		r.log.Warn("delivery queue full, dropping",
			zap.String("user_id", recipient), zap.String("message_id", m.ID))
	}
}

func (r *Router) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.queue:
			r.deliver(ctx, d)
		}
	}
}

func (r *Router) deliver(ctx context.Context, d delivery) {
	r.mu.RLock()
	conn := r.conns[d.userID]
	r.mu.RUnlock()
	if conn == nil {
		metrics.Deliveries.WithLabelValues(metrics.Offline).Inc()
		return
	}

	pctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	err := conn.Push(pctx, d.event)
	cancel()
	if err == nil {
		metrics.Deliveries.WithLabelValues(metrics.Delivered).Inc()
		return
	}

	err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	metrics.Deliveries.WithLabelValues(metrics.Failed).Inc()
	r.log.Warn("push failed, dropping connection",
		zap.String("user_id", d.userID),
		zap.String("message_id", d.event.Message.ID),
		zap.Error(err),
	)
	r.Release(d.userID, conn)
}
