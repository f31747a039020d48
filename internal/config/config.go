package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	ServerPort string `envconfig:"PORT" default:"8080"`
	GRPCPort   string `envconfig:"GRPC_PORT" default:"50051"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Empty RedisURL and no sentinels means the in-process store.
	RedisURL           string   `envconfig:"REDIS_URL"`
	RedisSentinelAddrs []string `envconfig:"REDIS_SENTINEL_ADDRS"`
	RedisMasterName    string   `envconfig:"REDIS_MASTER_NAME"`

	DatabaseURL  string `envconfig:"DATABASE_URL"`
	StatusLogURL string `envconfig:"STATUS_LOG_URL"`

	KafkaBrokers  string `envconfig:"KAFKA_BROKERS"`
	KafkaUsername string `envconfig:"KAFKA_USERNAME"`
	KafkaPassword string `envconfig:"KAFKA_PASSWORD"`
	KafkaCACert   string `envconfig:"KAFKA_CA_CERT"`
	KafkaTopic    string `envconfig:"KAFKA_TOPIC" default:"canteen.orders"`
	KafkaGroupID  string `envconfig:"KAFKA_GROUP_ID" default:"canteen-dashboard"`

	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	// poll checks watched orders every READY_POLL_INTERVAL; subscribe reacts
	// to store change notifications instead.
	ReadyWatchMode    string        `envconfig:"READY_WATCH_MODE" default:"poll"`
	ReadyPollInterval time.Duration `envconfig:"READY_POLL_INTERVAL" default:"3s"`
	CountdownTick     time.Duration `envconfig:"COUNTDOWN_TICK" default:"1s"`
	MenuTimingFile    string        `envconfig:"MENU_TIMING_FILE"`

	PrimaryOwner         string `envconfig:"PRIMARY_OWNER" default:"stockwise"`
	PrimaryOwnerPassword string `envconfig:"PRIMARY_OWNER_PASSWORD"`
}

// Load reads the environment. Call godotenv first if a .env file is used.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.CountdownTick <= 0 || c.CountdownTick > time.Second {
		return errors.Errorf("COUNTDOWN_TICK must be in (0, 1s], got %s", c.CountdownTick)
	}
	if c.ReadyPollInterval <= 0 {
		return errors.Errorf("READY_POLL_INTERVAL must be positive, got %s", c.ReadyPollInterval)
	}
	if c.ReadyWatchMode != "poll" && c.ReadyWatchMode != "subscribe" {
		return errors.Errorf("READY_WATCH_MODE must be poll or subscribe, got %q", c.ReadyWatchMode)
	}
	if c.PrimaryOwner == "" {
		return errors.New("PRIMARY_OWNER must not be empty")
	}
	return nil
}

// UseRedis reports whether a redis endpoint is configured.
func (c *Config) UseRedis() bool {
	return c.RedisURL != "" || (len(c.RedisSentinelAddrs) > 0 && c.RedisMasterName != "")
}
