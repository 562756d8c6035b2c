package artifact

import (
	"fmt"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/fxamacker/cbor/v2"
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

func EncodeArray(a fl.Array) ([]byte, error) {
	if err := checkArray(a); err != nil {
		return nil, err
	}

	return encMode.Marshal(a)
}

func DecodeArray(data []byte) (fl.Array, error) {
	var a fl.Array
	if err := cbor.Unmarshal(data, &a); err != nil {
		return fl.Array{}, fmt.Errorf("failed to decode array: %w", err)
	}
	if err := checkArray(a); err != nil {
		return fl.Array{}, err
	}

	return a, nil
}

func checkArray(a fl.Array) error {
	n := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", fl.ErrShapeMismatch, d)
		}
		n *= d
	}
	if len(a.Shape) == 0 {
		n = 0
	}
	if n != len(a.Data) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", fl.ErrShapeMismatch, a.Shape, n, len(a.Data))
	}

	return nil
}
