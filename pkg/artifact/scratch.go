package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/absmach/fedasync/pkg/fl"
)

// Scratch is the local namespace artifacts are read from and written to.
type Scratch struct {
	dir string
}

func NewScratch(dir string) (*Scratch, error) {
	if dir == "" {
		d, err := os.MkdirTemp("", "fedasync-scratch-")
		if err != nil {
			return nil, fmt.Errorf("failed to create scratch directory: %w", err)
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	return &Scratch{dir: dir}, nil
}

func (s *Scratch) Dir() string {
	return s.dir
}

func (s *Scratch) Path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	return filepath.Join(s.dir, key), nil
}

func (s *Scratch) WriteArray(key string, a fl.Array) error {
	data, err := EncodeArray(a)
	if err != nil {
		return err
	}

	return s.WriteFile(key, data)
}

func (s *Scratch) ReadArray(key string) (fl.Array, error) {
	data, err := s.ReadFile(key)
	if err != nil {
		return fl.Array{}, err
	}

	return DecodeArray(data)
}

// WriteParams stores weights and bias under their respective keys.
func (s *Scratch) WriteParams(weightKey, biasKey string, p fl.ParamSet) error {
	if err := s.WriteArray(weightKey, p.Weights); err != nil {
		return err
	}

	return s.WriteArray(biasKey, p.Bias)
}

func (s *Scratch) ReadParams(weightKey, biasKey string) (fl.ParamSet, error) {
	w, err := s.ReadArray(weightKey)
	if err != nil {
		return fl.ParamSet{}, err
	}
	b, err := s.ReadArray(biasKey)
	if err != nil {
		return fl.ParamSet{}, err
	}

	return fl.ParamSet{Weights: w, Bias: b}, nil
}

func (s *Scratch) WriteFile(key string, data []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}

	return writeAtomic(path, data)
}

func (s *Scratch) ReadFile(key string) ([]byte, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return data, err
}

func (s *Scratch) Remove(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}
