package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/calderhq/parley/pkg/config"
	"github.com/calderhq/parley/pkg/database"
	"github.com/calderhq/parley/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Database  database.Config
	Redis     RedisConfig
	History   HistoryConfig
	Presence  PresenceConfig
	Retention RetentionConfig
	Rooms     RoomsConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	StatsPrefix string        `mapstructure:"stats_prefix"`
	StatsTTL    time.Duration `mapstructure:"stats_ttl"`
}

type HistoryConfig struct {
	Limit int
}

type PresenceConfig struct {
	TypingTTL     time.Duration `mapstructure:"typing_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RetentionConfig struct {
	Enabled       bool
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RoomsConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "parley.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stats_prefix", "parley:stats")
	v.SetDefault("redis.stats_ttl", "5s")
	v.SetDefault("history.limit", 50)
	v.SetDefault("presence.typing_ttl", "6s")
	v.SetDefault("presence.sweep_interval", "2s")
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.max_age", "720h")
	v.SetDefault("retention.sweep_interval", "1h")
	v.SetDefault("rooms.sweep_interval", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "parley")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Redis.StatsTTL = parseDuration(v, "redis.stats_ttl", 5*time.Second)
	cfg.Presence.TypingTTL = parseDuration(v, "presence.typing_ttl", 6*time.Second)
	cfg.Presence.SweepInterval = parseDuration(v, "presence.sweep_interval", 2*time.Second)
	cfg.Retention.MaxAge = parseDuration(v, "retention.max_age", 720*time.Hour)
	cfg.Retention.SweepInterval = parseDuration(v, "retention.sweep_interval", time.Hour)
	cfg.Rooms.SweepInterval = parseDuration(v, "rooms.sweep_interval", 5*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
