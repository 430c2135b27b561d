package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env           string `env:"ENV,default=dev"`
	DataDirectory string `env:"DATA_DIR"`
	Server        struct {
		ListenAddr        string `env:"LISTEN_ADDR,default=:8080"`
		MetricsAddr       string `env:"METRICS_ADDR,default=:8081"`
		AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	}
	Remote struct {
		BaseURL   string `env:"API_BASE_URL"`
		TokenPath string `env:"TOKEN_PATH"`
		JWKPath   string `env:"JWK_PATH"`
	}
	Sync struct {
		Interval       time.Duration `env:"SYNC_INTERVAL,default=15m"`
		MaxRetries     int           `env:"SYNC_MAX_RETRIES,default=3"`
		BackoffBase    time.Duration `env:"SYNC_BACKOFF_BASE,default=30s"`
		BackoffMax     time.Duration `env:"SYNC_BACKOFF_MAX,default=10m"`
		ProbeInterval  time.Duration `env:"PROBE_INTERVAL,default=30s"`
		PurgeRetention time.Duration `env:"PURGE_RETENTION,default=168h"`
	}
}

func Load() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process(context.Background(), config); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}
