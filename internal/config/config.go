package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Liveness LivenessConfig `mapstructure:"liveness"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size" validate:"min=0"`
	WriteBufferSize int           `mapstructure:"write_buffer_size" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size" validate:"min=0"`
}

// BridgeConfig holds the optional outbound bridge settings.
// The bridge is disabled when URL is empty.
type BridgeConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds the optional Kafka event mirror settings.
// The mirror is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RedisConfig holds the optional completed-session archive settings.
// The archive is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// LivenessConfig holds the supervisor sweep settings.
type LivenessConfig struct {
	HeartbeatSweepInterval time.Duration `mapstructure:"heartbeat_sweep_interval" validate:"gt=0"`
	HeartbeatTimeout       time.Duration `mapstructure:"heartbeat_timeout" validate:"gt=0"`
	GhostSweepInterval     time.Duration `mapstructure:"ghost_sweep_interval" validate:"gt=0"`
	ZeroPowerTimeout       time.Duration `mapstructure:"zero_power_timeout" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_buffer_size", 4096)
	v.SetDefault("server.write_buffer_size", 4096)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.max_message_size", int64(1024*1024))

	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.secret", "")
	v.SetDefault("bridge.timeout", 5*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ocpp-events")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.async", false)

	v.SetDefault("liveness.heartbeat_sweep_interval", 10*time.Second)
	v.SetDefault("liveness.heartbeat_timeout", 60*time.Second)
	v.SetDefault("liveness.ghost_sweep_interval", 5*time.Second)
	v.SetDefault("liveness.zero_power_timeout", 30*time.Second)
}

func bindEnv(v *viper.Viper) {
	// Short env names of record; they override both defaults and file values.
	v.BindEnv("server.port", "PORT")
	v.BindEnv("bridge.url", "BRIDGE_URL")
	v.BindEnv("bridge.secret", "BRIDGE_SECRET")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("log.level", "LOG_LEVEL")
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// GetServerAddr returns the host:port listen address.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BridgeEnabled reports whether the outbound bridge is configured.
func (c *Config) BridgeEnabled() bool {
	return c.Bridge.URL != ""
}

// KafkaEnabled reports whether the Kafka event mirror is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// RedisEnabled reports whether the completed-session archive is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
