// Package fedasyncd boots the coordinator and client processes from their
// environment and runs in-process simulations of a whole deployment.
package fedasyncd

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/fedasync/client"
	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/channel"
	"github.com/absmach/fedasync/pkg/models/logreg"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/supermq/pkg/server"
	"github.com/caarlos0/env/v11"
)

const (
	CoordinatorEnvPrefix = "COORDINATOR_"
	ClientEnvPrefix      = "CLIENT_"
	runEnvPrefix         = "COORDINATOR_RUN_"
	httpEnvPrefix        = "COORDINATOR_HTTP_"
	defHTTPPort          = "7070"
)

type CoordinatorConfig struct {
	LogLevel     string          `env:"LOG_LEVEL"     envDefault:"info"`
	InstanceID   string          `env:"INSTANCE_ID"`
	RunFile      string          `env:"RUN_FILE"      envDefault:""`
	TickInterval time.Duration   `env:"TICK_INTERVAL" envDefault:"500ms"`
	OTELURL      url.URL         `env:"OTEL_URL"`
	TraceRatio   float64         `env:"TRACE_RATIO"   envDefault:"0"`
	Channel      channel.Config  `envPrefix:"CHANNEL_"`
	Artifacts    artifact.Config `envPrefix:"ARTIFACTS_"`
	Storage      storage.Config  `envPrefix:"STORAGE_"`
}

type ClientConfig struct {
	LogLevel  string          `env:"LOG_LEVEL" envDefault:"info"`
	Agent     client.Config
	Model     logreg.Config   `envPrefix:"MODEL_"`
	Channel   channel.Config  `envPrefix:"CHANNEL_"`
	Artifacts artifact.Config `envPrefix:"ARTIFACTS_"`
}

// LoadCoordinatorConfig reads the COORDINATOR_ environment. The run
// parameters come from runFile when set, falling back to COORDINATOR_RUN_FILE,
// and COORDINATOR_RUN_ variables override the file.
func LoadCoordinatorConfig(runFile string) (CoordinatorConfig, server.Config, coordinator.Config, error) {
	var cfg CoordinatorConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: CoordinatorEnvPrefix}); err != nil {
		return CoordinatorConfig{}, server.Config{}, coordinator.Config{}, fmt.Errorf("failed to load coordinator configuration: %w", err)
	}
	if runFile != "" {
		cfg.RunFile = runFile
	}

	run, err := coordinator.LoadConfig(cfg.RunFile, runEnvPrefix)
	if err != nil {
		return CoordinatorConfig{}, server.Config{}, coordinator.Config{}, err
	}

	srv := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&srv, env.Options{Prefix: httpEnvPrefix}); err != nil {
		return CoordinatorConfig{}, server.Config{}, coordinator.Config{}, fmt.Errorf("failed to load coordinator HTTP server configuration: %w", err)
	}

	return cfg, srv, run, nil
}

func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: ClientEnvPrefix}); err != nil {
		return ClientConfig{}, fmt.Errorf("failed to load client configuration: %w", err)
	}

	return cfg, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)

	return logger, nil
}
