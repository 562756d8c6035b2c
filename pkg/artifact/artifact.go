// Package artifact moves weight and bias arrays between a local scratch
// directory and a shared remote namespace.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	FS  = "fs"
	OCI = "oci"
)

var (
	ErrInvalidKey = errors.New("invalid artifact key")
	ErrNotFound   = errors.New("artifact not found")
)

type Store interface {
	// Upload pushes the scratch file named key to the remote namespace.
	Upload(ctx context.Context, key string) error
	// Download materializes the remote artifact key into the scratch namespace.
	Download(ctx context.Context, key string) error
	Scratch() *Scratch
}

func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`), strings.Contains(key, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case len(key) > 128:
		return fmt.Errorf("%w: longer than 128 characters", ErrInvalidKey)
	}

	return nil
}

// ClientKeys returns the weight and bias keys a client writes to.
func ClientKeys(prefix, clientID string) (weight, bias string) {
	base := prefix + "_" + clientID

	return base + ".weight", base + ".bias"
}

// GlobalKeys returns the keys holding the global state produced by round epoch.
func GlobalKeys(runID string, epoch int) (weight, bias string) {
	base := fmt.Sprintf("%s_e%d", runID, epoch)

	return base + ".weight", base + ".bias"
}
