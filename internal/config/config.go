// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sheild-gateway/internal/auth"
	"sheild-gateway/internal/data"
	"sheild-gateway/internal/logger"
	"sheild-gateway/internal/prediction"
	"sheild-gateway/internal/pubsub"
	"sheild-gateway/internal/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SHEILD_SERVER_UI_PORT.
const EnvPrefix = "SHEILD"

// Prediction modes.
const (
	PredictionLocal  = "local"
	PredictionRemote = "remote"
)

type Config struct {
	Server struct {
		DataPort        int           `mapstructure:"data_port"`
		UIPort          int           `mapstructure:"ui_port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		CORSOrigins     []string      `mapstructure:"cors_origins"`
		RateLimit       struct {
			RPS   float64 `mapstructure:"rps"`
			Burst int     `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"server"`

	Log    logger.Config       `mapstructure:"log"`
	Mongo  storage.MongoConfig `mapstructure:"mongo"`
	PubSub pubsub.Config       `mapstructure:"pubsub"`

	Alerts struct {
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"alerts"`

	Prediction struct {
		// Mode is local (built-in scorer) or remote (HTTP prediction service).
		Mode   string                  `mapstructure:"mode"`
		Remote prediction.ClientConfig `mapstructure:"remote"`
	} `mapstructure:"prediction"`

	Auth auth.Config `mapstructure:"auth"`

	Ingest struct {
		BufferSize int `mapstructure:"buffer_size"`
		// MaxUploadBytes bounds CSV uploads on the analyze endpoint.
		MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	} `mapstructure:"ingest"`

	// Machines are upserted into the machine store at startup.
	Machines []data.Machine `mapstructure:"machines"`
}

// Load reads config.yaml from dir, then .env files, then SHEILD_* environment
// variables. A missing config file is not an error; defaults apply.
func Load(dir string) (Config, error) {
	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	for i := range cfg.Machines {
		cfg.Machines[i].Thresholds = cfg.Machines[i].Thresholds.WithDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.data_port", 8080)
	v.SetDefault("server.ui_port", 8081)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.rps", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "sheild")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("pubsub.backend", "memory")
	v.SetDefault("pubsub.redis.addr", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.nats.url", "nats://localhost:4222")

	v.SetDefault("alerts.namespace", "alerts")

	v.SetDefault("prediction.mode", PredictionLocal)
	v.SetDefault("prediction.remote.base_url", "http://localhost:5000/api")
	v.SetDefault("prediction.remote.token", "")
	v.SetDefault("prediction.remote.timeout", 15*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiration", 7*24*time.Hour)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("ingest.buffer_size", 100)
	v.SetDefault("ingest.max_upload_bytes", 10<<20)
}

// Validate rejects configurations the gateway cannot start with.
func (c Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{"server.data_port": c.Server.DataPort, "server.ui_port": c.Server.UIPort} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s: invalid port %d", name, port))
		}
	}
	if c.Server.DataPort == c.Server.UIPort {
		errs = append(errs, fmt.Errorf("server.data_port and server.ui_port must differ"))
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit: negative values"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required (set %s_AUTH_JWT_SECRET)", EnvPrefix))
	}
	if c.Alerts.Namespace == "" {
		errs = append(errs, fmt.Errorf("alerts.namespace is required"))
	}
	switch c.PubSub.Backend {
	case "memory", "redis", "nats":
	default:
		errs = append(errs, fmt.Errorf("pubsub.backend: unknown backend %q", c.PubSub.Backend))
	}
	switch c.Prediction.Mode {
	case PredictionLocal:
	case PredictionRemote:
		if c.Prediction.Remote.BaseURL == "" {
			errs = append(errs, fmt.Errorf("prediction.remote.base_url is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("prediction.mode: unknown mode %q", c.Prediction.Mode))
	}
	if c.Ingest.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.buffer_size must be positive"))
	}
	seen := map[string]bool{}
	for i, m := range c.Machines {
		if m.MachineID == "" {
			errs = append(errs, fmt.Errorf("machines[%d]: machine_id is required", i))
			continue
		}
		if seen[m.MachineID] {
			errs = append(errs, fmt.Errorf("machines[%d]: duplicate machine_id %q", i, m.MachineID))
		}
		seen[m.MachineID] = true
		if err := m.Thresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("machines[%d] %s: %w", i, m.MachineID, err))
		}
	}
	return errors.Join(errs...)
}
