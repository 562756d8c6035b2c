package channel

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedasync/pkg/mqtt"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Type          string        `env:"TYPE"            envDefault:"mqtt"`
	Capacity      int           `env:"CAPACITY"        envDefault:"1024"`
	MQTTAddress   string        `env:"MQTT_ADDRESS"    envDefault:"tcp://localhost:1883"`
	MQTTQoS       uint8         `env:"MQTT_QOS"        envDefault:"1"`
	MQTTTimeout   time.Duration `env:"MQTT_TIMEOUT"    envDefault:"30s"`
	MQTTUsername  string        `env:"MQTT_USERNAME"   envDefault:""`
	MQTTPassword  string        `env:"MQTT_PASSWORD"   envDefault:""`
	MQTTBaseTopic string        `env:"MQTT_BASE_TOPIC" envDefault:"fedasync"`
	RedisURL      string        `env:"REDIS_URL"       envDefault:"redis://localhost:6379/0"`
	RedisPrefix   string        `env:"REDIS_PREFIX"    envDefault:"fedasync:"`
}

// New connects the backend selected by cfg.Type. connID identifies the
// connection to the broker and must be unique per process. A memory channel
// is private to the returned handle's broker and is only useful in-process.
func New(cfg Config, connID string, logger *slog.Logger) (Channel, error) {
	switch cfg.Type {
	case Memory:
		return NewBroker(cfg.Capacity).Channel(), nil
	case MQTT:
		ps, err := mqtt.NewPubSub(mqtt.Config{
			URL:      cfg.MQTTAddress,
			QoS:      cfg.MQTTQoS,
			ID:       connID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Timeout:  cfg.MQTTTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}

		return NewMQTT(ps, cfg.MQTTBaseTopic, cfg.Capacity, logger), nil
	case Redis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		return NewRedis(redis.NewClient(opts), cfg.RedisPrefix, cfg.Capacity), nil
	default:
		return nil, fmt.Errorf("unknown channel type %q", cfg.Type)
	}
}
