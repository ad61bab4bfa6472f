package cli

import (
	"errors"
	"strings"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/messaging/kafkasender"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/messaging/redislive"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/redis/go-redis/v9"
)

// channels are the notification senders plus the session registry the live
// channel and the heartbeat endpoint share.
type channels struct {
	senders  map[notification.Channel]notification.Sender
	sessions notification.SessionRegistry
	closers  []func() error
}

// openChannels picks Redis for live sessions when REDIS_ADDR is set and Kafka
// for the messenger when KAFKA_BROKERS is set. Without Redis the live channel
// stays in process; without Kafka the messenger channel is unavailable.
func (a *app) openChannels(log observability.Logger) *channels {
	ch := &channels{senders: make(map[notification.Channel]notification.Sender, 2)}

	if addr := strings.TrimSpace(a.cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: a.cfg.RedisPassword,
		})
		sessions := redislive.NewSessionRegistry(client)
		ch.sessions = sessions
		ch.senders[notification.ChannelLive] = redislive.NewSender(client, sessions)
		ch.closers = append(ch.closers, client.Close)
		log.Info("live_channel_ready", observability.F("backend", "redis"), observability.F("addr", addr))
	} else {
		sessions := memory.NewSessionRegistry()
		ch.sessions = sessions
		ch.senders[notification.ChannelLive] = memory.NewLiveHub(sessions)
		log.Info("live_channel_ready", observability.F("backend", "memory"))
	}

	if len(a.cfg.KafkaBrokers) > 0 {
		sender := kafkasender.New(kafkasender.NewWriter(a.cfg.KafkaBrokers, a.cfg.KafkaTopic))
		ch.senders[notification.ChannelMessenger] = sender
		ch.closers = append(ch.closers, sender.Close)
		log.Info("messenger_channel_ready",
			observability.F("brokers", strings.Join(a.cfg.KafkaBrokers, ",")),
			observability.F("topic", a.cfg.KafkaTopic),
		)
	} else {
		log.Warn("messenger_channel_disabled", observability.F("reason", "KAFKA_BROKERS not set"))
	}
	return ch
}

func (c *channels) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
