package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"minishop-orders"`
	Env         string `env:"ENV" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`

	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCHealthAddr string        `env:"GRPC_HEALTH_ADDR" envDefault:":8081"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	LockTimeout    time.Duration `env:"LOCK_TIMEOUT" envDefault:"2s"`

	// StoreDriver is one of memory, sqlite, mysql, postgres.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	StoreDSN    string `env:"STORE_DSN" envDefault:"data/orders.db"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"minishop.notifications"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	LiveSessionTTL time.Duration `env:"LIVE_SESSION_TTL" envDefault:"2m"`

	NotifyMaxAttempts int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
	NotifyBaseDelay   time.Duration `env:"NOTIFY_BASE_DELAY" envDefault:"200ms"`
	NotifyMultiplier  float64       `env:"NOTIFY_MULTIPLIER" envDefault:"2"`
	NotifyMaxDelay    time.Duration `env:"NOTIFY_MAX_DELAY" envDefault:"5s"`
	// NotifyChannels is the channel set used for recipients without an override.
	NotifyChannels         []string          `env:"NOTIFY_CHANNELS" envSeparator:"," envDefault:"live,messenger"`
	NotifyChannelOverrides map[string]string `env:"NOTIFY_CHANNEL_OVERRIDES" envSeparator:";" envKeyValSeparator:"="`

	DispatchPartitions     int           `env:"DISPATCH_PARTITIONS" envDefault:"8"`
	DispatchQueueSize      int           `env:"DISPATCH_QUEUE_SIZE" envDefault:"1024"`
	DispatchHandlerTimeout time.Duration `env:"DISPATCH_HANDLER_TIMEOUT" envDefault:"30s"`

	// StoreOwners maps store id to owner actor id: "s1=u1;s2=u2".
	StoreOwners map[string]string `env:"AUTHZ_STORE_OWNERS" envSeparator:";" envKeyValSeparator:"="`
	// StoreAdmins maps store id to a |-separated admin list: "s1=a1|a2".
	StoreAdmins map[string]string `env:"AUTHZ_STORE_ADMINS" envSeparator:";" envKeyValSeparator:"="`
	// DeliveryBots may confirm delivery for any store.
	DeliveryBots []string `env:"AUTHZ_DELIVERY_BOTS" envSeparator:","`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
