package artifact_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedasync/pkg/artifact"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/content/memory"
)

func newScratch(t *testing.T) *artifact.Scratch {
	s, err := artifact.NewScratch(t.TempDir())
	require.NoError(t, err)

	return s
}

func stores(t *testing.T) map[string]func() (writer, reader artifact.Store) {
	return map[string]func() (artifact.Store, artifact.Store){
		artifact.FS: func() (artifact.Store, artifact.Store) {
			root := t.TempDir()
			w, err := artifact.NewFS(root, newScratch(t))
			require.NoError(t, err)
			r, err := artifact.NewFS(root, newScratch(t))
			require.NoError(t, err)

			return w, r
		},
		artifact.OCI: func() (artifact.Store, artifact.Store) {
			target := memory.New()

			return artifact.NewOCI(target, newScratch(t)), artifact.NewOCI(target, newScratch(t))
		},
	}
}

func TestUploadDownload(t *testing.T) {
	params := fl.ParamSet{
		Weights: fl.Array{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}},
		Bias:    fl.Array{Shape: []int{1}, Data: []float64{0.5}},
	}
	wk, bk := artifact.ClientKeys("p1", "client-a")

	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			writer, reader := mk()

			require.NoError(t, writer.Scratch().WriteParams(wk, bk, params))
			require.NoError(t, writer.Upload(ctx, wk))
			require.NoError(t, writer.Upload(ctx, bk))

			require.NoError(t, reader.Download(ctx, wk))
			require.NoError(t, reader.Download(ctx, bk))
			got, err := reader.Scratch().ReadParams(wk, bk)
			require.NoError(t, err)
			assert.Equal(t, params, got)
		})
	}
}

func TestOverwrite(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			writer, reader := mk()

			require.NoError(t, writer.Scratch().WriteArray("k.weight", fl.Array{Shape: []int{1}, Data: []float64{1}}))
			require.NoError(t, writer.Upload(ctx, "k.weight"))
			require.NoError(t, writer.Scratch().WriteArray("k.weight", fl.Array{Shape: []int{1}, Data: []float64{2}}))
			require.NoError(t, writer.Upload(ctx, "k.weight"))

			require.NoError(t, reader.Download(ctx, "k.weight"))
			got, err := reader.Scratch().ReadArray("k.weight")
			require.NoError(t, err)
			assert.Equal(t, []float64{2}, got.Data)
		})
	}
}

func TestTransferErrors(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			writer, reader := mk()

			cases := []struct {
				desc string
				op   func() error
			}{
				{desc: "download missing artifact", op: func() error { return reader.Download(ctx, "missing.weight") }},
				{desc: "upload missing scratch file", op: func() error { return writer.Upload(ctx, "missing.bias") }},
				{desc: "download invalid key", op: func() error { return reader.Download(ctx, "../etc/passwd") }},
			}

			for _, tc := range cases {
				t.Run(tc.desc, func(t *testing.T) {
					assert.ErrorIs(t, tc.op(), fl.ErrTransfer)
				})
			}
		})
	}
}

func TestScratchKeys(t *testing.T) {
	s := newScratch(t)

	cases := []struct {
		desc string
		key  string
		err  error
	}{
		{desc: "client key", key: "abc_def.weight"},
		{desc: "empty", key: "", err: artifact.ErrInvalidKey},
		{desc: "dot dot", key: "..", err: artifact.ErrInvalidKey},
		{desc: "path separator", key: "a/b", err: artifact.ErrInvalidKey},
		{desc: "traversal", key: "..weight", err: artifact.ErrInvalidKey},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			path, err := s.Path(tc.key)
			assert.ErrorIs(t, err, tc.err)
			if tc.err == nil {
				assert.Equal(t, filepath.Join(s.Dir(), tc.key), path)
			}
		})
	}
}

func TestArrayEncoding(t *testing.T) {
	a := fl.Array{Shape: []int{3}, Data: []float64{-1, 0, 1.5}}
	data, err := artifact.EncodeArray(a)
	require.NoError(t, err)
	got, err := artifact.DecodeArray(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = artifact.EncodeArray(fl.Array{Shape: []int{2}, Data: []float64{1}})
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)

	_, err = artifact.DecodeArray([]byte("not cbor"))
	assert.Error(t, err)
}

func TestScratchReadMissing(t *testing.T) {
	s := newScratch(t)
	_, err := s.ReadArray("nothing.weight")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestKeys(t *testing.T) {
	w, b := artifact.ClientKeys("pre", "id")
	assert.Equal(t, "pre_id.weight", w)
	assert.Equal(t, "pre_id.bias", b)

	w, b = artifact.GlobalKeys("run", 3)
	assert.Equal(t, "run_e3.weight", w)
	assert.Equal(t, "run_e3.bias", b)
}

func TestNew(t *testing.T) {
	cases := []struct {
		desc    string
		cfg     artifact.Config
		wantErr bool
	}{
		{desc: "filesystem", cfg: artifact.Config{Type: artifact.FS, ScratchDir: t.TempDir(), Root: t.TempDir()}},
		{desc: "in memory oci", cfg: artifact.Config{Type: artifact.OCI, ScratchDir: t.TempDir()}},
		{desc: "unknown", cfg: artifact.Config{Type: "s3", ScratchDir: t.TempDir()}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := artifact.New(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			_, err = os.Stat(s.Scratch().Dir())
			assert.NoError(t, err)
		})
	}
}
