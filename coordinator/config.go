package coordinator

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/scheduler"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const (
	// AggregatePolicy aggregates whatever arrived when a round times out.
	AggregatePolicy = "aggregate"
	// ExtendPolicy keeps the round open and re-broadcasts it.
	ExtendPolicy = "extend"
)

var (
	errNEpochs          = errors.New("n_epochs must be at least 1")
	errMinFitClients    = errors.New("min_fit_clients must be at least 1")
	errMinUpdateClients = errors.New("min_update_clients must be at least 1")
	errConvergentValue  = errors.New("convergent_value must not be negative")
	errRoundTimeout     = errors.New("round_timeout must be positive")
	errSampleSize       = errors.New("sample_size must not be negative")
	errFeatures         = errors.New("features must be at least 1")
)

// Config is the run configuration. Field names in TOML files match the
// env names in lower case without the service prefix.
type Config struct {
	RunID            string        `toml:"run_id"             env:"RUN_ID"             envDefault:""`
	NEpochs          int           `toml:"n_epochs"           env:"N_EPOCHS"           envDefault:"10"`
	MinFitClients    int           `toml:"min_fit_clients"    env:"MIN_FIT_CLIENTS"    envDefault:"2"`
	MinUpdateClients int           `toml:"min_update_clients" env:"MIN_UPDATE_CLIENTS" envDefault:"2"`
	ConvergentValue  float64       `toml:"convergent_value"   env:"CONVERGENT_VALUE"   envDefault:"0"`
	Convergence      string        `toml:"convergence"        env:"CONVERGENCE"        envDefault:"loss-delta"`
	RoundTimeout     time.Duration `toml:"round_timeout"      env:"ROUND_TIMEOUT"      envDefault:"1m"`
	DegradedPolicy   string        `toml:"degraded_policy"    env:"DEGRADED_POLICY"    envDefault:"aggregate"`
	Selection        string        `toml:"selection"          env:"SELECTION"          envDefault:"all"`
	SampleSize       int           `toml:"sample_size"        env:"SAMPLE_SIZE"        envDefault:"0"`
	Seed             int64         `toml:"seed"               env:"SEED"               envDefault:"1"`
	Aggregation      string        `toml:"aggregation"        env:"AGGREGATION"        envDefault:"fedavg"`
	WasmAggregator   string        `toml:"wasm_aggregator"    env:"WASM_AGGREGATOR"    envDefault:""`
	Features         int           `toml:"features"           env:"FEATURES"           envDefault:"4"`
}

func (c Config) Validate() error {
	switch {
	case c.NEpochs < 1:
		return errNEpochs
	case c.MinFitClients < 1:
		return errMinFitClients
	case c.MinUpdateClients < 1:
		return errMinUpdateClients
	case c.ConvergentValue < 0:
		return errConvergentValue
	case c.RoundTimeout <= 0:
		return errRoundTimeout
	case c.SampleSize < 0:
		return errSampleSize
	case c.Features < 1:
		return errFeatures
	}

	switch c.DegradedPolicy {
	case AggregatePolicy, ExtendPolicy:
	default:
		return fmt.Errorf("unknown degraded policy %q", c.DegradedPolicy)
	}
	switch c.Selection {
	case scheduler.All, scheduler.Random, scheduler.RoundRobin:
	default:
		return fmt.Errorf("unknown selection strategy %q", c.Selection)
	}
	switch c.Aggregation {
	case fl.FedAvg, fl.Mean:
	case fl.Wasm:
		if c.WasmAggregator == "" {
			return errors.New("wasm aggregation requires wasm_aggregator")
		}
	default:
		return fmt.Errorf("unknown aggregation strategy %q", c.Aggregation)
	}
	switch c.Convergence {
	case fl.LossDelta, fl.Accuracy:
	default:
		return fmt.Errorf("unknown convergence criterion %q", c.Convergence)
	}

	return nil
}

// LoadConfig reads the run configuration from the environment and, when
// path is not empty, from a TOML file. Environment variables that are set
// take precedence over file values; file values take precedence over
// defaults.
func LoadConfig(path, envPrefix string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to load run configuration: %w", err)
	}
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading run config file: %w", err)
	}
	tree, err := toml.Load(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("error parsing run config file: %w", err)
	}

	var file Config
	if err := tree.Unmarshal(&file); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling run config: %w", err)
	}
	overlay(&cfg, file, tree, envPrefix)

	return cfg, cfg.Validate()
}

// overlay copies into dst the fields present in tree, unless the matching
// variable is set in the environment.
func overlay(dst *Config, file Config, tree *toml.Tree, prefix string) {
	dv := reflect.ValueOf(dst).Elem()
	fv := reflect.ValueOf(file)
	t := dv.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !tree.Has(field.Tag.Get("toml")) {
			continue
		}
		if _, ok := os.LookupEnv(prefix + field.Tag.Get("env")); ok {
			continue
		}
		dv.Field(i).Set(fv.Field(i))
	}
}
