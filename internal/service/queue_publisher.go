// Package service publishes engine events to RabbitMQ.  Publishing is
// best effort: the engine has already committed when an event is
// emitted, so failures are logged and never reach the request.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/queue"
)

const publishTimeout = 2 * time.Second

// Publisher is a booking.Sink that forwards events to a durable queue.
// Emit only enqueues; Run owns the broker connection and does the
// publishing, so a slow or absent broker never stalls a booking.
type Publisher struct {
	url    string
	queue  string
	events chan queue.HoldEvent

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ booking.Sink = (*Publisher)(nil)

// NewPublisher returns a Publisher for queueName buffering up to buffer
// events while the broker is slow.
func NewPublisher(url, queueName string, buffer int) *Publisher {
	if queueName == "" {
		queueName = queue.DefaultHoldQueue
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{url: url, queue: queueName, events: make(chan queue.HoldEvent, buffer)}
}

// Emit enqueues ev, dropping it with a warning when the buffer is full.
func (p *Publisher) Emit(_ context.Context, ev booking.Event) {
	select {
	case p.events <- toHoldEvent(ev):
	default:
		log.Warnf("rabbitmq: publish buffer full, dropping %s for departure %s", ev.Type, ev.DepartureID)
	}
}

// Run publishes queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			if err := p.publish(ctx, ev); err != nil {
				// one reconnect per event, then drop it
				p.close()
				if err = p.publish(ctx, ev); err != nil {
					log.Errorf("rabbitmq: dropping %s for hold %s: %v", ev.Type, ev.HoldID, err)
					p.close()
				}
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev queue.HoldEvent) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         ev.Type,
			Body:         body,
		},
	)
}

// channel returns the cached channel, dialing and declaring the queue on
// first use or after a failure.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func toHoldEvent(ev booking.Event) queue.HoldEvent {
	return queue.HoldEvent{
		Type:        string(ev.Type),
		DepartureID: ev.DepartureID,
		HoldID:      ev.HoldID,
		OwnerRef:    ev.OwnerRef,
		Quantity:    ev.Quantity,
		OccurredAt:  ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
