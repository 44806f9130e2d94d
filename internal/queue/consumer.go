package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer reads session events and appends one line per event to
// <Dir>/notifications.log, standing in for the email sender.
type Consumer struct {
	URL   string
	Queue string
	Dir   string
	Log   *zap.Logger
}

// Run connects, consumes and reconnects with exponential backoff until
// ctx is cancelled.  Malformed messages are rejected without requeue so
// they cannot loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("notification consumer: dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("notification consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("notification consumer: set QoS failed", zap.Error(err))
	}
	if err := declare(ch, c.Queue); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.handle(d.Body); err != nil {
			c.Log.Error("notification consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) handle(body []byte) error {
	var ev SessionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Event == "" || ev.SessionID == "" {
		return errors.New("event without type or session id")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev SessionEvent) string {
	line := fmt.Sprintf("[%s] %s | session_id=%s | client_id=%d | reader_id=%d | service=%s | status=%s | window=%s/%s | amount=%d cents",
		ev.OccurredAt, headline(ev.Event), ev.SessionID, ev.ClientID, ev.ReaderID, ev.ServiceType, ev.Status,
		ev.StartAt, ev.EndAt, ev.AmountCents)
	if ev.PaymentRef != nil {
		line += " | payment_ref=" + *ev.PaymentRef
	}
	return line + "\n"
}

func headline(event string) string {
	switch event {
	case "booking.created":
		return "Booking received, awaiting payment"
	case "payment.confirmed":
		return "Payment received, session confirmed"
	case "session.status_changed":
		return "Session status changed"
	case "session.rescheduled":
		return "Session rescheduled"
	}
	return event
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
