package notification

import (
	"context"
	"time"
)

type Channel string

const (
	ChannelLive      Channel = "live"
	ChannelMessenger Channel = "messenger"
)

// Class decides the delivery semantics of a channel.
type Class int

const (
	// ClassBestEffort channels get a single attempt; a missed delivery is not an error.
	ClassBestEffort Class = iota
	// ClassPersistent channels are retried under a RetryPolicy.
	ClassPersistent
)

func (c Channel) Class() Class {
	if c == ChannelLive {
		return ClassBestEffort
	}
	return ClassPersistent
}

// DeliveryResult reports one send attempt. OK false with a nil Err means the
// recipient was not reachable on the channel (e.g. no live session).
type DeliveryResult struct {
	OK        bool
	Retryable bool
	Err       error
}

func Delivered() DeliveryResult { return DeliveryResult{OK: true} }

func Skipped() DeliveryResult { return DeliveryResult{} }

func Failed(err error, retryable bool) DeliveryResult {
	return DeliveryResult{Err: err, Retryable: retryable}
}

// Sender delivers one message to one recipient over one channel.
type Sender interface {
	Send(ctx context.Context, channel Channel, recipient Recipient, msg Message) DeliveryResult
}

// Directory resolves the people around a store and how they want to be reached.
type Directory interface {
	StoreStaff(ctx context.Context, storeID string) (owner string, admins []string, err error)
	Channels(ctx context.Context, recipientID string) []Channel
}

// SessionRegistry tracks live chat sessions with an explicit TTL.
type SessionRegistry interface {
	Touch(ctx context.Context, recipientID, sessionID string, ttl time.Duration) error
	Active(ctx context.Context, recipientID string) ([]string, error)
}
