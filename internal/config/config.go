package config

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	AppName           string        `env:"CANOPY_APP_NAME,default=canopy"`
	Port              string        `env:"CANOPY_PORT,default=9090"`
	LogLevel          string        `env:"CANOPY_LOG_LEVEL,default=info"`
	CollectorEndpoint string        `env:"CANOPY_COLLECTOR_ENDPOINT"`
	SendTimeout       time.Duration `env:"CANOPY_SEND_TIMEOUT,default=10s"`
	HarvestInterval   time.Duration `env:"CANOPY_HARVEST_INTERVAL,default=5s"`
	LogSendingEnabled bool          `env:"CANOPY_LOG_SENDING_ENABLED,default=true"`
	MaxSamplesStored  int           `env:"CANOPY_MAX_SAMPLES_STORED,default=10000"`
	InternCacheSize   int           `env:"CANOPY_INTERN_CACHE_SIZE,default=1000"`
	InternCacheTTL    time.Duration `env:"CANOPY_INTERN_CACHE_TTL,default=70s"`
	TailPath          string        `env:"CANOPY_TAIL_PATH"`
	TailPollInterval  time.Duration `env:"CANOPY_TAIL_POLL_INTERVAL,default=500ms"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	return &cfg, nil
}

func WriteHelp(w io.Writer, version string) {
	fmt.Fprintf(w, "canopy %s\n\n", version)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  CANOPY_APP_NAME=canopy")
	fmt.Fprintln(w, "  CANOPY_PORT=9090")
	fmt.Fprintln(w, "  CANOPY_LOG_LEVEL=info")
	fmt.Fprintln(w, "  CANOPY_COLLECTOR_ENDPOINT=")
	fmt.Fprintln(w, "  CANOPY_SEND_TIMEOUT=10s")
	fmt.Fprintln(w, "  CANOPY_HARVEST_INTERVAL=5s")
	fmt.Fprintln(w, "  CANOPY_LOG_SENDING_ENABLED=true")
	fmt.Fprintln(w, "  CANOPY_MAX_SAMPLES_STORED=10000")
	fmt.Fprintln(w, "  CANOPY_INTERN_CACHE_SIZE=1000")
	fmt.Fprintln(w, "  CANOPY_INTERN_CACHE_TTL=70s")
	fmt.Fprintln(w, "  CANOPY_TAIL_PATH=")
	fmt.Fprintln(w, "  CANOPY_TAIL_POLL_INTERVAL=500ms")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  --help")
	fmt.Fprintln(w, "  --version")
}
