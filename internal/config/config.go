package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Host string `mapstructure:"host"`

	SignalingPort int `mapstructure:"signaling_port"`
	MediaPort     int `mapstructure:"media_port"`
	HTTPPort      int `mapstructure:"http_port"`

	CredentialsPath string `mapstructure:"credentials_path"`
	DataDir         string `mapstructure:"data_dir"`

	SignalingKeepAlive time.Duration `mapstructure:"signaling_keep_alive"`
	MediaKeepAlive     time.Duration `mapstructure:"media_keep_alive"`
	KeepAliveMisses    int           `mapstructure:"keep_alive_misses"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`

	ReadLimit int64  `mapstructure:"read_limit"`
	Secret    string `mapstructure:"secret"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("signaling_port", 9092)
	v.SetDefault("media_port", 8081)
	v.SetDefault("http_port", 3000)
	v.SetDefault("credentials_path", "data/rtms_credentials.json")
	v.SetDefault("data_dir", "data")
	v.SetDefault("signaling_keep_alive", "30s")
	v.SetDefault("media_keep_alive", "5s")
	v.SetDefault("keep_alive_misses", 3)
	v.SetDefault("handshake_timeout", "30s")
	v.SetDefault("read_limit", 1048576)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
