package artifact

import (
	"fmt"

	"oras.land/oras-go/v2/content/memory"
)

type Config struct {
	Type       string         `env:"TYPE"        envDefault:"fs"`
	ScratchDir string         `env:"SCRATCH_DIR" envDefault:""`
	Root       string         `env:"ROOT"        envDefault:"./artifacts"`
	Registry   RegistryConfig `envPrefix:"REGISTRY_"`
}

// New builds the store selected by cfg.Type. An oci store without a
// repository keeps artifacts in process memory.
func New(cfg Config) (Store, error) {
	scratch, err := NewScratch(cfg.ScratchDir)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case FS, "":
		return NewFS(cfg.Root, scratch)
	case OCI:
		if cfg.Registry.Repository == "" {
			return NewOCI(memory.New(), scratch), nil
		}
		repo, err := NewRepository(cfg.Registry)
		if err != nil {
			return nil, err
		}

		return NewOCI(repo, scratch), nil
	default:
		return nil, fmt.Errorf("unknown artifact store type %q", cfg.Type)
	}
}
