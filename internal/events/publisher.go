// Package events publishes order events to RabbitMQ.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xenking/delivery-api/internal/domain/order"
)

var _ order.EventPublisher = (*Publisher)(nil)

// Publisher sends order events to a topic exchange. The routing key is the
// event type.
type Publisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // guards ch
	ch *amqp.Channel
}

// Dial connects to the broker and declares the exchange.
func Dial(ctx context.Context, url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}

	zctx.From(ctx).Info("Connected to broker", zap.String("exchange", exchange))
	return &Publisher{conn: conn, exchange: exchange, ch: ch}, nil
}

// Publish sends e as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return errors.Wrap(err, "reopen channel")
		}
		p.ch = ch
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.Order.ID.String(),
		Timestamp:    e.At,
		Type:         string(e.Type),
		Body:         Encode(e),
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

// Check reports whether the broker connection is open.
func (p *Publisher) Check(context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}

// Encode renders e as the JSON message body.
func Encode(e order.Event) []byte {
	o := e.Order

	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("type")
	w.Str(string(e.Type))
	w.FieldStart("orderId")
	w.Str(o.ID.String())
	w.FieldStart("customerId")
	w.Str(o.CustomerID.String())
	w.FieldStart("restaurantId")
	w.Str(o.RestaurantID.String())
	w.FieldStart("status")
	w.Str(string(o.Status))
	if e.From != "" {
		w.FieldStart("previousStatus")
		w.Str(string(e.From))
	}
	w.FieldStart("total")
	w.Num(jx.Num(o.Total.StringFixed(2)))
	if o.CouponCode != "" {
		w.FieldStart("couponCode")
		w.Str(o.CouponCode)
	}
	w.FieldStart("at")
	w.Str(e.At.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()
	return w.Bytes()
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

// Publish implements order.EventPublisher.
func (Nop) Publish(context.Context, order.Event) error { return nil }
