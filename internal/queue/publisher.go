package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
)

const defaultDialTimeout = 5 * time.Second

// Publisher publishes session events to a durable RabbitMQ queue.  It
// dials per publish; event volume is a handful per booking.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
}

func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, queue: queue, log: log}
}

var _ booking.Notifier = (*Publisher)(nil)

// Notify implements booking.Notifier.  Messages are persistent.
func (p *Publisher) Notify(ctx context.Context, kind booking.EventKind, s model.Session) error {
	body, err := json.Marshal(NewSessionEvent(kind, s, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, p.queue); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(kind),
		MessageId:    s.ID + ":" + string(kind),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	p.log.Debug("session event published",
		zap.String("event", string(kind)), zap.String("session_id", s.ID))
	return nil
}

// dial connects within the time left on ctx, including the AMQP
// handshake.
func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// declare makes sure the durable queue exists.  It is idempotent.
func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// LogNotifier writes session events to the application log.  It is used
// when no broker is configured.
type LogNotifier struct{ Log *zap.Logger }

// Notify implements booking.Notifier.
func (n LogNotifier) Notify(_ context.Context, kind booking.EventKind, s model.Session) error {
	n.Log.Info("session event",
		zap.String("event", string(kind)),
		zap.String("session_id", s.ID),
		zap.Uint64("client_id", s.ClientID),
		zap.String("status", string(s.Status)),
		zap.Time("start_at", s.StartAt))
	return nil
}
