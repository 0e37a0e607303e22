package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the slice of *amqp.Channel the bus uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

type Dialer func(url string) (Connection, error)

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// Bus broadcasts over a fanout exchange. Each Subscribe gets its own
// exclusive, auto-delete queue bound to the exchange, so every instance sees
// every payload while it is connected and nothing piles up once it leaves.
// A connection lost to a broker restart is redialed on the next Publish or
// Subscribe.
type Bus struct {
	url      string
	exchange string
	dial     Dialer

	mu     sync.Mutex
	conn   Connection
	ch     Channel
	closed bool
}

func NewBus(url, exchange string) (*Bus, error) {
	return NewBusWithDialer(url, exchange, dialAMQP)
}

func NewBusWithDialer(url, exchange string, dial Dialer) (*Bus, error) {
	b := &Bus{url: url, exchange: exchange, dial: dial}
	if _, _, err := b.connection(); err != nil {
		return nil, err
	}
	return b, nil
}

// connection returns a live connection and publish channel, dialing and
// redeclaring the exchange when the previous ones are gone.
func (b *Bus) connection() (Connection, Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, amqp.ErrClosed
	}
	if b.conn != nil && !b.conn.IsClosed() && b.ch != nil && !b.ch.IsClosed() {
		return b.conn, b.ch, nil
	}
	b.dropLocked()

	conn, err := b.dial(b.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := ch.ExchangeDeclare(
		b.exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", b.exchange, err)
	}

	b.conn, b.ch = conn, ch
	return conn, ch, nil
}

func (b *Bus) dropLocked() {
	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.dropLocked()
	return nil
}

func (b *Bus) Publish(ctx context.Context, payload []byte) error {
	_, ch, err := b.connection()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		b.exchange,
		"", // fanout ignores the routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         payload,
			Timestamp:    time.Now(),
		},
	)
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	conn, _, err := b.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",
		true, // auto-ack: real-time delivery is at-most-once anyway
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- d.Body:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
