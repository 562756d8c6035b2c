package fl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WasmAggregator runs a WASI command module as the aggregation function. The
// module reads the JSON encoded updates on stdin and writes a JSON Result to
// stdout.
type WasmAggregator struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

func NewWasmAggregator(wasmPath string) (*WasmAggregator, error) {
	if wasmPath == "" {
		return nil, errors.New("wasm aggregator requires a module path")
	}
	binary, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("wasm aggregator file not found: %w", err)
	}

	return NewWasmAggregatorFromBytes(context.Background(), binary)
}

func NewWasmAggregatorFromBytes(ctx context.Context, binary []byte) (*WasmAggregator, error) {
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Join(errors.New("failed to compile wasm aggregator"), err, r.Close(ctx))
	}

	return &WasmAggregator{
		runtime:  r,
		compiled: compiled,
	}, nil
}

func (w *WasmAggregator) Aggregate(ctx context.Context, updates []Update) (Result, error) {
	if err := checkUpdates(updates); err != nil {
		return Result{}, err
	}

	input, err := json.Marshal(updates)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal updates: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	w.mu.Lock()
	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, cfg)
	w.mu.Unlock()
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return Result{}, fmt.Errorf("wasm aggregator execution failed: %w: %s", err, stderr.String())
		}
	}
	if mod != nil {
		defer mod.Close(ctx)
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal aggregated result: %w", err)
	}
	if !res.Params.SameShape(updates[0].Params) {
		return Result{}, fmt.Errorf("%w: wasm aggregator result", ErrShapeMismatch)
	}

	return res, nil
}

func (w *WasmAggregator) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
