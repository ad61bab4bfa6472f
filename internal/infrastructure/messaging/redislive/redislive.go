// Package redislive keeps live chat sessions in Redis and pushes live
// notifications over Pub/Sub to whichever gateway holds the session.
package redislive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "live:sessions:"
	channelPrefix    = "live:notify:"
)

// SessionRegistry stores one sorted set per recipient, scored by expiry in
// unix milliseconds.
type SessionRegistry struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewSessionRegistry(client redis.UniversalClient) *SessionRegistry {
	return &SessionRegistry{client: client, now: time.Now}
}

func (r *SessionRegistry) Touch(ctx context.Context, recipientID, sessionID string, ttl time.Duration) error {
	if recipientID == "" || sessionID == "" {
		return fmt.Errorf("live sessions: recipient and session id are required")
	}
	if ttl <= 0 {
		return fmt.Errorf("live sessions: ttl must be positive")
	}
	key := sessionKeyPrefix + recipientID
	now := r.now()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: sessionID})
		// The set lives as long as its longest session.
		p.ExpireNX(ctx, key, ttl+time.Second)
		p.ExpireGT(ctx, key, ttl+time.Second)
		return nil
	})
	if err != nil {
		return fmt.Errorf("live sessions: touch: %w", err)
	}
	return nil
}

func (r *SessionRegistry) Active(ctx context.Context, recipientID string) ([]string, error) {
	key := sessionKeyPrefix + recipientID
	ids, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(r.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("live sessions: active: %w", err)
	}
	return ids, nil
}

// Sender publishes live notifications to recipients with an active session.
type Sender struct {
	client   redis.UniversalClient
	sessions notification.SessionRegistry
}

func NewSender(client redis.UniversalClient, sessions notification.SessionRegistry) *Sender {
	return &Sender{client: client, sessions: sessions}
}

func (s *Sender) Send(ctx context.Context, channel notification.Channel, recipient notification.Recipient, msg notification.Message) notification.DeliveryResult {
	if channel != notification.ChannelLive {
		return notification.Failed(fmt.Errorf("redis live: unsupported channel %q", channel), false)
	}
	sessions, err := s.sessions.Active(ctx, recipient.ID)
	if err != nil {
		return notification.Failed(err, false)
	}
	if len(sessions) == 0 {
		return notification.Skipped()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return notification.Failed(fmt.Errorf("redis live: encode: %w", err), false)
	}
	receivers, err := s.client.Publish(ctx, channelPrefix+recipient.ID, data).Result()
	if err != nil {
		return notification.Failed(fmt.Errorf("redis live: publish: %w", err), false)
	}
	if receivers == 0 {
		return notification.Skipped()
	}
	return notification.Delivered()
}

// Subscribe opens the stream a chat gateway reads for recipientID.
func (s *Sender) Subscribe(ctx context.Context, recipientID string) *redis.PubSub {
	return s.client.Subscribe(ctx, channelPrefix+recipientID)
}
