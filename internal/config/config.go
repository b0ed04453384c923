package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/duykhanhyb1994/sayhi.io.vn/pkg/config"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/database"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Database  database.Config
	Storage   StorageConfig
	Crypto    CryptoConfig
	Auth      AuthConfig
	Redis     RedisConfig
	History   HistoryConfig
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

type StorageConfig struct {
	Driver string // local, s3
	Local  storage.LocalConfig
	S3     storage.S3Config
	URLTTL time.Duration `mapstructure:"url_ttl"`
}

type CryptoConfig struct {
	// Key is the base64 Fernet key used for message content at rest.
	Key string
}

type AuthConfig struct {
	// TokenSecret verifies identity tokens issued by the upstream
	// auth service. Authentication itself happens before a connection
	// reaches this relay.
	TokenSecret string `mapstructure:"token_secret"`
}

type RedisConfig struct {
	Enabled       bool
	Address       string
	Password      string
	DB            int
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type HistoryConfig struct {
	Limit int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 10485760)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "sayhi.db")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "media")
	v.SetDefault("storage.url_ttl", "24h")
	v.SetDefault("crypto.key", "n5QergO_eFsagxO-wIon6QCJhxKYNodnRWVX9s6ueMw=")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "chat:room:")
	v.SetDefault("history.limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service", "sayhi-relay")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("crypto.key", "CONTENT_KEY")
	v.BindEnv("auth.token_secret", "TOKEN_SECRET")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Storage.URLTTL = parseDuration(v, "storage.url_ttl", 24*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
