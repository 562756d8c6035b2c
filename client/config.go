package client

import (
	"errors"
	"time"
)

const (
	defaultPollInterval     = time.Second
	defaultRegisterInterval = 5 * time.Second
)

var (
	errInvalidPollInterval     = errors.New("poll interval must be positive")
	errInvalidRegisterInterval = errors.New("register interval must be positive")
)

// Config holds the agent's identity and poll cadence. Empty ID and Prefix
// are generated once at construction. Until the coordinator first writes
// to the agent's inbox, the registration is repeated every
// RegisterInterval.
type Config struct {
	ID               string        `env:"ID"                envDefault:""`
	Prefix           string        `env:"PREFIX"            envDefault:""`
	PollInterval     time.Duration `env:"POLL_INTERVAL"     envDefault:"1s"`
	RegisterInterval time.Duration `env:"REGISTER_INTERVAL" envDefault:"5s"`
}

func (c Config) Validate() error {
	switch {
	case c.PollInterval < 0:
		return errInvalidPollInterval
	case c.RegisterInterval < 0:
		return errInvalidRegisterInterval
	}

	return nil
}
