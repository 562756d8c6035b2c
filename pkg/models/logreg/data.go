package logreg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
)

type dataset struct {
	x [][]float64
	y []float64
}

// synthetic draws linearly separable-ish samples around a seeded hyperplane.
func synthetic(features, samples int, seed int64) *dataset {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x5eed))
	truth := make([]float64, features)
	for i := range truth {
		truth[i] = rng.NormFloat64() * 2
	}

	ds := &dataset{
		x: make([][]float64, samples),
		y: make([]float64, samples),
	}
	for i := range samples {
		x := make([]float64, features)
		z := 0.0
		for j := range x {
			x[j] = rng.NormFloat64()
			z += truth[j] * x[j]
		}
		z += rng.NormFloat64() * 0.5
		ds.x[i] = x
		if z > 0 {
			ds.y[i] = 1
		}
	}

	return ds
}

// loadCSV reads rows of features followed by a 0/1 label. A header row is
// skipped when its first cell is not numeric.
func loadCSV(path string, features int) (*dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data set: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = features + 1
	ds := &dataset{}
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read data set: %w", err)
		}
		row := make([]float64, features+1)
		for i, cell := range rec {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				if line == 1 && len(ds.x) == 0 {
					row = nil

					break
				}

				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			row[i] = v
		}
		if row == nil {
			continue
		}
		label := row[features]
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("line %d: label must be 0 or 1, got %v", line, label)
		}
		ds.x = append(ds.x, row[:features])
		ds.y = append(ds.y, label)
	}
	if len(ds.x) < 2 {
		return nil, fmt.Errorf("data set %s has fewer than 2 rows", path)
	}

	return ds, nil
}

func (d *dataset) split(testRatio float64, seed int64) (train, test *dataset) {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x5711))
	perm := rng.Perm(len(d.x))
	nTest := int(math.Round(float64(len(d.x)) * testRatio))
	if nTest >= len(d.x) {
		nTest = len(d.x) - 1
	}

	train, test = &dataset{}, &dataset{}
	for k, i := range perm {
		dst := train
		if k < nTest {
			dst = test
		}
		dst.x = append(dst.x, append([]float64(nil), d.x[i]...))
		dst.y = append(dst.y, d.y[i])
	}

	return train, test
}

func (d *dataset) stats() (mean, std []float64) {
	features := len(d.x[0])
	mean = make([]float64, features)
	std = make([]float64, features)
	n := float64(len(d.x))
	for _, x := range d.x {
		for j, v := range x {
			mean[j] += v / n
		}
	}
	for _, x := range d.x {
		for j, v := range x {
			std[j] += (v - mean[j]) * (v - mean[j]) / n
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j])
		if std[j] < eps {
			std[j] = 1
		}
	}

	return mean, std
}

func (d *dataset) standardize(mean, std []float64) {
	for _, x := range d.x {
		for j := range x {
			x[j] = (x[j] - mean[j]) / std[j]
		}
	}
}
