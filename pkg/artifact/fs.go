package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/absmach/fedasync/pkg/fl"
)

type fsStore struct {
	root    string
	scratch *Scratch
}

// NewFS uses root as the remote namespace. Every party sharing root sees
// the same artifacts.
func NewFS(root string, scratch *Scratch) (Store, error) {
	if root == "" {
		return nil, errors.New("empty artifact root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}

	return &fsStore{root: root, scratch: scratch}, nil
}

func (s *fsStore) Upload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(fl.ErrTransfer, err)
	}
	data, err := s.scratch.ReadFile(key)
	if err != nil {
		return fmt.Errorf("%w: upload %s: %w", fl.ErrTransfer, key, err)
	}
	if err := writeAtomic(filepath.Join(s.root, key), data); err != nil {
		return fmt.Errorf("%w: upload %s: %w", fl.ErrTransfer, key, err)
	}

	return nil
}

func (s *fsStore) Download(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(fl.ErrTransfer, err)
	}
	if err := ValidateKey(key); err != nil {
		return fmt.Errorf("%w: download: %w", fl.ErrTransfer, err)
	}
	data, err := os.ReadFile(filepath.Join(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			err = ErrNotFound
		}

		return fmt.Errorf("%w: download %s: %w", fl.ErrTransfer, key, err)
	}
	if err := s.scratch.WriteFile(key, data); err != nil {
		return fmt.Errorf("%w: download %s: %w", fl.ErrTransfer, key, err)
	}

	return nil
}

func (s *fsStore) Scratch() *Scratch {
	return s.scratch
}
