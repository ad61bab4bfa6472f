// Package kafkasender delivers persistent-channel notifications as Kafka
// records keyed by recipient, so one recipient's messages stay in order.
package kafkasender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"

	"github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the sender needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

type Sender struct {
	w   Writer
	now func() time.Time
}

func New(w Writer) *Sender {
	return &Sender{w: w, now: time.Now}
}

func (s *Sender) Send(ctx context.Context, channel notification.Channel, recipient notification.Recipient, msg notification.Message) notification.DeliveryResult {
	if channel != notification.ChannelMessenger {
		return notification.Failed(fmt.Errorf("kafka sender: unsupported channel %q", channel), false)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return notification.Failed(fmt.Errorf("kafka sender: encode: %w", err), false)
	}
	err = s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient.ID),
		Value: data,
		Time:  s.now().UTC(),
		Headers: []kafka.Header{
			{Key: "notification_type", Value: []byte(msg.Type)},
			{Key: "priority", Value: []byte(msg.Priority)},
			{Key: "event_id", Value: []byte(msg.EventID)},
		},
	})
	if err != nil {
		return notification.Failed(fmt.Errorf("kafka sender: write: %w", err), retryable(err))
	}
	return notification.Delivered()
}

func (s *Sender) Close() error { return s.w.Close() }

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var tooLarge kafka.MessageTooLargeError
	if errors.As(err, &tooLarge) {
		return false
	}
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil && !retryable(e) {
				return false
			}
		}
		return true
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	// Dial and I/O failures carry no classification; the broker may come back.
	return true
}
