package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
	"collab-lab/internal/observability"
)

var errTransportClosed = errors.New("amqp relay transport closed")

// Transport carries relay envelopes over a topic exchange. Each topic maps to
// a routing key; every subscription gets its own exclusive auto-delete queue.
// A connection dropped by the broker is redialed on the next Publish or
// Subscribe, so the bridge's retries recover once the broker is back.
type Transport struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewTransport connects to amqpURL and declares the relay exchange.
func NewTransport(amqpURL, exchange string) (*Transport, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	t := &Transport{url: amqpURL, exchange: exchange}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, _, err := t.session(); err != nil {
		return nil, err
	}
	jww.INFO.Printf("rabbitmq relay connected exchange=%s", exchange)
	return t, nil
}

// session returns a live connection and publish channel, redialing when the
// previous connection is gone. t.mu must be held.
func (t *Transport) session() (*amqp.Connection, *amqp.Channel, error) {
	if t.closed {
		return nil, nil, errTransportClosed
	}
	if t.conn != nil && !t.conn.IsClosed() {
		if t.ch != nil && !t.ch.IsClosed() {
			return t.conn, t.ch, nil
		}
		ch, err := t.conn.Channel()
		if err == nil {
			t.ch = ch
			return t.conn, t.ch, nil
		}
		_ = t.conn.Close()
	}

	t.conn, t.ch = nil, nil
	conn, ch, err := dialExchange(t.url, t.exchange)
	if err != nil {
		return nil, nil, errors.Wrap(err, "amqp relay connect")
	}
	t.conn, t.ch = conn, ch
	go t.watch(conn)
	return conn, ch, nil
}

// watch drops conn from the transport once the broker closes it.
func (t *Transport) watch(conn *amqp.Connection) {
	reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != conn {
		return
	}
	t.conn, t.ch = nil, nil
	if ok && reason != nil && !t.closed {
		observability.IncRelayReconnect()
		jww.WARN.Printf("rabbitmq relay connection lost exchange=%s, redialing on next use: %v", t.exchange, reason)
	}
}

func (t *Transport) Publish(ctx context.Context, topic string, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, ch, err := t.session()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, t.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.ID,
		Timestamp:   env.SentAt,
		Body:        body,
	})
}

// Subscribe returns a channel of envelopes published on topic. The channel
// closes when ctx is done or the broker ends the consumer.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan models.Envelope, error) {
	t.mu.Lock()
	conn, _, err := t.session()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(q.Name, topic, t.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "bind queue")
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "consume")
	}

	out := make(chan models.Envelope)
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
				var env models.Envelope
				if err := json.Unmarshal(d.Body, &env); err != nil {
					jww.WARN.Printf("rabbitmq relay dropped undecodable event topic=%s: %v", topic, err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	conn := t.conn
	if t.ch != nil {
		_ = t.ch.Close()
	}
	t.conn, t.ch = nil, nil
	if conn == nil {
		return nil
	}
	return conn.Close()
}
