package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/absmach/fedasync/pkg/fl"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	ArtifactType   = "application/vnd.fedasync.array.v1"
	ArrayMediaType = "application/vnd.fedasync.array.v1+cbor"
)

type ociStore struct {
	target  oras.Target
	scratch *Scratch
}

// NewOCI stores each artifact as a tagged manifest with a single CBOR layer.
func NewOCI(target oras.Target, scratch *Scratch) Store {
	return &ociStore{target: target, scratch: scratch}
}

type RegistryConfig struct {
	Repository string `env:"REPOSITORY" envDefault:""`
	PlainHTTP  bool   `env:"PLAIN_HTTP" envDefault:"false"`
	Username   string `env:"USERNAME"   envDefault:""`
	Password   string `env:"PASSWORD"   envDefault:""`
	Token      string `env:"TOKEN"      envDefault:""`
}

// NewRepository opens a remote OCI repository such as
// localhost:5000/fedasync/run-1.
func NewRepository(cfg RegistryConfig) (*remote.Repository, error) {
	repo, err := remote.NewRepository(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository for %s: %w", cfg.Repository, err)
	}
	repo.PlainHTTP = cfg.PlainHTTP

	var cred auth.Credential
	switch {
	case cfg.Username != "" && cfg.Password != "":
		cred = auth.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	case cfg.Token != "":
		cred = auth.Credential{
			AccessToken: cfg.Token,
		}
	default:
		repo.Client = retry.DefaultClient

		return repo, nil
	}

	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: auth.StaticCredential(repo.Reference.Registry, cred),
	}

	return repo, nil
}

func (s *ociStore) Upload(ctx context.Context, key string) error {
	data, err := s.scratch.ReadFile(key)
	if err != nil {
		return fmt.Errorf("%w: upload %s: %w", fl.ErrTransfer, key, err)
	}

	layer := content.NewDescriptorFromBytes(ArrayMediaType, data)
	layer.Annotations = map[string]string{ocispec.AnnotationTitle: key}
	if err := s.target.Push(ctx, layer, bytes.NewReader(data)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return fmt.Errorf("%w: push layer %s: %w", fl.ErrTransfer, key, err)
	}

	manifest, err := oras.PackManifest(ctx, s.target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
	})
	if err != nil {
		return fmt.Errorf("%w: pack manifest %s: %w", fl.ErrTransfer, key, err)
	}

	if err := s.target.Tag(ctx, manifest, key); err != nil {
		return fmt.Errorf("%w: tag %s: %w", fl.ErrTransfer, key, err)
	}

	return nil
}

func (s *ociStore) Download(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return fmt.Errorf("%w: download: %w", fl.ErrTransfer, err)
	}

	desc, err := s.target.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			err = errors.Join(ErrNotFound, err)
		}

		return fmt.Errorf("%w: resolve %s: %w", fl.ErrTransfer, key, err)
	}

	manifestData, err := content.FetchAll(ctx, s.target, desc)
	if err != nil {
		return fmt.Errorf("%w: fetch manifest %s: %w", fl.ErrTransfer, key, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return fmt.Errorf("%w: parse manifest %s: %w", fl.ErrTransfer, key, err)
	}

	layer, err := findArrayLayer(manifest)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", fl.ErrTransfer, key, err)
	}

	data, err := content.FetchAll(ctx, s.target, layer)
	if err != nil {
		return fmt.Errorf("%w: fetch layer %s: %w", fl.ErrTransfer, key, err)
	}

	if err := s.scratch.WriteFile(key, data); err != nil {
		return fmt.Errorf("%w: download %s: %w", fl.ErrTransfer, key, err)
	}

	return nil
}

func (s *ociStore) Scratch() *Scratch {
	return s.scratch
}

func findArrayLayer(manifest ocispec.Manifest) (ocispec.Descriptor, error) {
	for _, l := range manifest.Layers {
		if l.MediaType == ArrayMediaType {
			return l, nil
		}
	}

	return ocispec.Descriptor{}, errors.New("no array layer found in manifest")
}
