package fl

import (
	"slices"
	"time"
)

type GlobalRoundMessage struct {
	NEpochs      int      `json:"n_epochs"`
	CurrentEpoch int      `json:"current_epoch"`
	ChosenID     []string `json:"chosen_id"`
	WeightFile   string   `json:"weight_file"`
	BiasFile     string   `json:"bias_file"`
}

// Terminal reports whether the message ends the run for every client.
func (m GlobalRoundMessage) Terminal() bool {
	return m.NEpochs-m.CurrentEpoch == 0
}

func (m GlobalRoundMessage) IsChosen(clientID string) bool {
	return slices.Contains(m.ChosenID, clientID)
}

// ChosenSet returns ids de-duplicated and never nil, the form a decoded
// chosen_id takes.
func ChosenSet(ids []string) []string {
	return dedupe(ids)
}

// Timestamp drops the location and monotonic reading of t so that it
// survives an encode/decode cycle unchanged.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Round(0)
}

type ClientUpdateMessage struct {
	ClientID string `json:"client_id"`
	// Epoch is the client's own completed-epoch counter before the increment.
	Epoch int `json:"epoch"`
	// GlobalEpoch echoes the current_epoch of the broadcast that triggered
	// the training and tags the update with the round it belongs to.
	GlobalEpoch int       `json:"global_epoch"`
	WeightFile  string    `json:"weight_file"`
	BiasFile    string    `json:"bias_file"`
	Acc         float64   `json:"acc"`
	Loss        float64   `json:"loss"`
	NumSamples  int       `json:"num_samples"`
	Start       time.Time `json:"start"`
}

type Array struct {
	Shape []int     `json:"shape" cbor:"1,keyasint"`
	Data  []float64 `json:"data"  cbor:"2,keyasint"`
}

func (a Array) Len() int {
	return len(a.Data)
}

func (a Array) SameShape(b Array) bool {
	return slices.Equal(a.Shape, b.Shape) && len(a.Data) == len(b.Data)
}

func (a Array) Clone() Array {
	return Array{
		Shape: slices.Clone(a.Shape),
		Data:  slices.Clone(a.Data),
	}
}

// NewArray returns a zero-filled array with the given shape.
func NewArray(shape ...int) Array {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if len(shape) == 0 {
		n = 0
	}

	return Array{
		Shape: slices.Clone(shape),
		Data:  make([]float64, n),
	}
}

type ParamSet struct {
	Weights Array `json:"weights"`
	Bias    Array `json:"bias"`
}

func (p ParamSet) Clone() ParamSet {
	return ParamSet{
		Weights: p.Weights.Clone(),
		Bias:    p.Bias.Clone(),
	}
}

func (p ParamSet) SameShape(o ParamSet) bool {
	return p.Weights.SameShape(o.Weights) && p.Bias.SameShape(o.Bias)
}

type Metrics struct {
	Acc        float64 `json:"acc"`
	Loss       float64 `json:"loss"`
	NumSamples int     `json:"num_samples"`
}

// Update is a client contribution once its artifacts are materialized.
type Update struct {
	ClientID   string    `json:"client_id"`
	Epoch      int       `json:"epoch"`
	Params     ParamSet  `json:"params"`
	Metrics    Metrics   `json:"metrics"`
	ReceivedAt time.Time `json:"received_at"`
}

type Result struct {
	Params  ParamSet `json:"params"`
	Metrics Metrics  `json:"metrics"`
}
