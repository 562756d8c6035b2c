package fl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type globalWire struct {
	NEpochs      *int      `json:"n_epochs"`
	CurrentEpoch *int      `json:"current_epoch"`
	ChosenID     *[]string `json:"chosen_id"`
	WeightFile   *string   `json:"weight_file"`
	BiasFile     *string   `json:"bias_file"`
}

type updateWire struct {
	ClientID    *string  `json:"client_id"`
	Epoch       *int     `json:"epoch"`
	GlobalEpoch *int     `json:"global_epoch"`
	WeightFile  *string  `json:"weight_file"`
	BiasFile    *string  `json:"bias_file"`
	Acc         *float64 `json:"acc"`
	Loss        *float64 `json:"loss"`
	NumSamples  *int     `json:"num_samples"`
	Start       *string  `json:"start"`
}

func EncodeGlobal(m GlobalRoundMessage) ([]byte, error) {
	if err := validateGlobal(m); err != nil {
		return nil, err
	}
	chosen := m.ChosenID
	if chosen == nil {
		chosen = []string{}
	}
	w := globalWire{
		NEpochs:      &m.NEpochs,
		CurrentEpoch: &m.CurrentEpoch,
		ChosenID:     &chosen,
		WeightFile:   &m.WeightFile,
		BiasFile:     &m.BiasFile,
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return data, nil
}

func DecodeGlobal(data []byte) (GlobalRoundMessage, error) {
	var w globalWire
	if err := strictUnmarshal(data, &w); err != nil {
		return GlobalRoundMessage{}, err
	}

	missing := []string{}
	if w.NEpochs == nil {
		missing = append(missing, "n_epochs")
	}
	if w.CurrentEpoch == nil {
		missing = append(missing, "current_epoch")
	}
	if w.ChosenID == nil {
		missing = append(missing, "chosen_id")
	}
	if w.WeightFile == nil {
		missing = append(missing, "weight_file")
	}
	if w.BiasFile == nil {
		missing = append(missing, "bias_file")
	}
	if len(missing) > 0 {
		return GlobalRoundMessage{}, missingFields(missing)
	}

	m := GlobalRoundMessage{
		NEpochs:      *w.NEpochs,
		CurrentEpoch: *w.CurrentEpoch,
		ChosenID:     dedupe(*w.ChosenID),
		WeightFile:   *w.WeightFile,
		BiasFile:     *w.BiasFile,
	}
	if err := validateGlobal(m); err != nil {
		return GlobalRoundMessage{}, err
	}

	return m, nil
}

func EncodeUpdate(m ClientUpdateMessage) ([]byte, error) {
	if err := validateUpdate(m); err != nil {
		return nil, err
	}
	start := m.Start.UTC().Format(time.RFC3339Nano)
	w := updateWire{
		ClientID:    &m.ClientID,
		Epoch:       &m.Epoch,
		GlobalEpoch: &m.GlobalEpoch,
		WeightFile:  &m.WeightFile,
		BiasFile:    &m.BiasFile,
		Acc:         &m.Acc,
		Loss:        &m.Loss,
		NumSamples:  &m.NumSamples,
		Start:       &start,
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return data, nil
}

func DecodeUpdate(data []byte) (ClientUpdateMessage, error) {
	var w updateWire
	if err := strictUnmarshal(data, &w); err != nil {
		return ClientUpdateMessage{}, err
	}

	missing := []string{}
	if w.ClientID == nil {
		missing = append(missing, "client_id")
	}
	if w.Epoch == nil {
		missing = append(missing, "epoch")
	}
	if w.GlobalEpoch == nil {
		missing = append(missing, "global_epoch")
	}
	if w.WeightFile == nil {
		missing = append(missing, "weight_file")
	}
	if w.BiasFile == nil {
		missing = append(missing, "bias_file")
	}
	if w.Start == nil {
		missing = append(missing, "start")
	}
	if len(missing) > 0 {
		return ClientUpdateMessage{}, missingFields(missing)
	}

	start, err := time.Parse(time.RFC3339Nano, *w.Start)
	if err != nil {
		return ClientUpdateMessage{}, fmt.Errorf("%w: start: %w", ErrMalformedMessage, err)
	}

	m := ClientUpdateMessage{
		ClientID:    *w.ClientID,
		Epoch:       *w.Epoch,
		GlobalEpoch: *w.GlobalEpoch,
		WeightFile:  *w.WeightFile,
		BiasFile:    *w.BiasFile,
		Start:       start,
	}
	if w.Acc != nil {
		m.Acc = *w.Acc
	}
	if w.Loss != nil {
		m.Loss = *w.Loss
	}
	if w.NumSamples != nil {
		m.NumSamples = *w.NumSamples
	}
	if err := validateUpdate(m); err != nil {
		return ClientUpdateMessage{}, err
	}

	return m, nil
}

func EncodeRegistration(clientID string) ([]byte, error) {
	id := strings.TrimSpace(clientID)
	if id == "" {
		return nil, fmt.Errorf("%w: empty client id", ErrMalformedMessage)
	}

	return []byte(id), nil
}

func DecodeRegistration(data []byte) (string, error) {
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("%w: empty client id", ErrMalformedMessage)
	}

	return id, nil
}

func validateGlobal(m GlobalRoundMessage) error {
	switch {
	case m.NEpochs < 1:
		return fmt.Errorf("%w: n_epochs must be positive, got %d", ErrMalformedMessage, m.NEpochs)
	case m.CurrentEpoch < 0:
		return fmt.Errorf("%w: negative current_epoch %d", ErrMalformedMessage, m.CurrentEpoch)
	case m.CurrentEpoch > m.NEpochs:
		return fmt.Errorf("%w: current_epoch %d exceeds n_epochs %d", ErrMalformedMessage, m.CurrentEpoch, m.NEpochs)
	}

	return validateFiles(m.WeightFile, m.BiasFile)
}

func validateUpdate(m ClientUpdateMessage) error {
	switch {
	case strings.TrimSpace(m.ClientID) == "":
		return fmt.Errorf("%w: empty client_id", ErrMalformedMessage)
	case m.Epoch < 0:
		return fmt.Errorf("%w: negative epoch %d", ErrMalformedMessage, m.Epoch)
	case m.GlobalEpoch < 1:
		return fmt.Errorf("%w: global_epoch must be positive, got %d", ErrMalformedMessage, m.GlobalEpoch)
	case m.NumSamples < 0:
		return fmt.Errorf("%w: negative num_samples %d", ErrMalformedMessage, m.NumSamples)
	}

	return validateFiles(m.WeightFile, m.BiasFile)
}

func validateFiles(weight, bias string) error {
	switch {
	case weight == "":
		return fmt.Errorf("%w: empty weight_file", ErrMalformedMessage)
	case bias == "":
		return fmt.Errorf("%w: empty bias_file", ErrMalformedMessage)
	case weight == bias:
		return fmt.Errorf("%w: weight_file and bias_file must differ", ErrMalformedMessage)
	}

	return nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after message", ErrMalformedMessage)
	}

	return nil
}

func missingFields(fields []string) error {
	return fmt.Errorf("%w: missing required fields: %s", ErrMalformedMessage, strings.Join(fields, ", "))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
