package fl_test

import (
	"testing"
	"time"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genIDs(t *rapid.T, label string) []string {
	if rapid.Bool().Draw(t, label+"_nil") {
		return nil
	}

	return rapid.SliceOf(rapid.StringMatching(`[a-z0-9-]{1,12}`)).Draw(t, label)
}

func TestGlobalRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 1000).Draw(rt, "n_epochs")
		m := fl.GlobalRoundMessage{
			NEpochs:      n,
			CurrentEpoch: rapid.IntRange(0, n).Draw(rt, "current_epoch"),
			ChosenID:     fl.ChosenSet(genIDs(rt, "chosen_id")),
			WeightFile:   rapid.StringMatching(`[a-z0-9_]{1,16}\.weight`).Draw(rt, "weight_file"),
			BiasFile:     rapid.StringMatching(`[a-z0-9_]{1,16}\.bias`).Draw(rt, "bias_file"),
		}

		data, err := fl.EncodeGlobal(m)
		require.NoError(rt, err)
		got, err := fl.DecodeGlobal(data)
		require.NoError(rt, err)
		assert.Equal(rt, m, got)
	})
}

func TestUpdateRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sec := rapid.Int64Range(0, 4102444800).Draw(rt, "sec")
		nsec := rapid.Int64Range(0, 999999999).Draw(rt, "nsec")
		zone := time.FixedZone("local", rapid.IntRange(-12, 14).Draw(rt, "zone")*3600)
		m := fl.ClientUpdateMessage{
			ClientID:    rapid.StringMatching(`[a-z0-9-]{1,36}`).Draw(rt, "client_id"),
			Epoch:       rapid.IntRange(0, 1000).Draw(rt, "epoch"),
			GlobalEpoch: rapid.IntRange(1, 1000).Draw(rt, "global_epoch"),
			WeightFile:  rapid.StringMatching(`[a-z0-9_]{1,16}\.weight`).Draw(rt, "weight_file"),
			BiasFile:    rapid.StringMatching(`[a-z0-9_]{1,16}\.bias`).Draw(rt, "bias_file"),
			Acc:         rapid.Float64Range(0, 1).Draw(rt, "acc"),
			Loss:        rapid.Float64Range(0, 1e6).Draw(rt, "loss"),
			NumSamples:  rapid.IntRange(0, 1<<20).Draw(rt, "num_samples"),
			Start:       fl.Timestamp(time.Unix(sec, nsec).In(zone)),
		}

		data, err := fl.EncodeUpdate(m)
		require.NoError(rt, err)
		got, err := fl.DecodeUpdate(data)
		require.NoError(rt, err)
		assert.Equal(rt, m, got)
	})
}

func TestRoundTripOfLiveValues(t *testing.T) {
	terminal := fl.GlobalRoundMessage{
		NEpochs:      3,
		CurrentEpoch: 3,
		ChosenID:     fl.ChosenSet(nil),
		WeightFile:   "run_e2.weight",
		BiasFile:     "run_e2.bias",
	}
	data, err := fl.EncodeGlobal(terminal)
	require.NoError(t, err)
	got, err := fl.DecodeGlobal(data)
	require.NoError(t, err)
	assert.Equal(t, terminal, got)

	update := fl.ClientUpdateMessage{
		ClientID:    "A",
		GlobalEpoch: 1,
		WeightFile:  "p_A.weight",
		BiasFile:    "p_A.bias",
		Start:       fl.Timestamp(time.Now()),
	}
	data, err = fl.EncodeUpdate(update)
	require.NoError(t, err)
	gotUpdate, err := fl.DecodeUpdate(data)
	require.NoError(t, err)
	assert.Equal(t, update, gotUpdate)
}

func TestDecodeGlobal(t *testing.T) {
	cases := []struct {
		desc string
		data string
		msg  fl.GlobalRoundMessage
		err  error
	}{
		{
			desc: "valid message",
			data: `{"n_epochs":2,"current_epoch":1,"chosen_id":["A"],"weight_file":"w","bias_file":"b"}`,
			msg:  fl.GlobalRoundMessage{NEpochs: 2, CurrentEpoch: 1, ChosenID: []string{"A"}, WeightFile: "w", BiasFile: "b"},
		},
		{
			desc: "empty chosen set",
			data: `{"n_epochs":2,"current_epoch":2,"chosen_id":[],"weight_file":"w","bias_file":"b"}`,
			msg:  fl.GlobalRoundMessage{NEpochs: 2, CurrentEpoch: 2, ChosenID: []string{}, WeightFile: "w", BiasFile: "b"},
		},
		{
			desc: "duplicate chosen ids collapse",
			data: `{"n_epochs":3,"current_epoch":1,"chosen_id":["A","B","A"],"weight_file":"w","bias_file":"b"}`,
			msg:  fl.GlobalRoundMessage{NEpochs: 3, CurrentEpoch: 1, ChosenID: []string{"A", "B"}, WeightFile: "w", BiasFile: "b"},
		},
		{
			desc: "missing chosen_id",
			data: `{"n_epochs":2,"current_epoch":1,"weight_file":"w","bias_file":"b"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "missing n_epochs",
			data: `{"current_epoch":1,"chosen_id":[],"weight_file":"w","bias_file":"b"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "wrong type",
			data: `{"n_epochs":"two","current_epoch":1,"chosen_id":[],"weight_file":"w","bias_file":"b"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "current epoch beyond n_epochs",
			data: `{"n_epochs":2,"current_epoch":3,"chosen_id":[],"weight_file":"w","bias_file":"b"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "negative current epoch",
			data: `{"n_epochs":2,"current_epoch":-1,"chosen_id":[],"weight_file":"w","bias_file":"b"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "same weight and bias key",
			data: `{"n_epochs":2,"current_epoch":1,"chosen_id":[],"weight_file":"x","bias_file":"x"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "not json",
			data: `garbage`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "trailing data",
			data: `{"n_epochs":2,"current_epoch":1,"chosen_id":[],"weight_file":"w","bias_file":"b"}{}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "empty payload",
			data: ``,
			err:  fl.ErrMalformedMessage,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			msg, err := fl.DecodeGlobal([]byte(tc.data))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.msg, msg)
		})
	}
}

func TestDecodeUpdate(t *testing.T) {
	start := `"2026-01-02T03:04:05.000000006Z"`

	cases := []struct {
		desc string
		data string
		err  error
	}{
		{
			desc: "valid update",
			data: `{"client_id":"A","epoch":0,"global_epoch":1,"weight_file":"p_A.weight","bias_file":"p_A.bias","acc":0.5,"loss":0.7,"num_samples":10,"start":` + start + `}`,
		},
		{
			desc: "metrics are optional",
			data: `{"client_id":"A","epoch":0,"global_epoch":1,"weight_file":"p_A.weight","bias_file":"p_A.bias","start":` + start + `}`,
		},
		{
			desc: "missing client_id",
			data: `{"epoch":0,"global_epoch":1,"weight_file":"w","bias_file":"b","start":` + start + `}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "empty client_id",
			data: `{"client_id":" ","epoch":0,"global_epoch":1,"weight_file":"w","bias_file":"b","start":` + start + `}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "missing global_epoch",
			data: `{"client_id":"A","epoch":0,"weight_file":"w","bias_file":"b","start":` + start + `}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "negative epoch",
			data: `{"client_id":"A","epoch":-1,"global_epoch":1,"weight_file":"w","bias_file":"b","start":` + start + `}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "bad timestamp",
			data: `{"client_id":"A","epoch":0,"global_epoch":1,"weight_file":"w","bias_file":"b","start":"yesterday"}`,
			err:  fl.ErrMalformedMessage,
		},
		{
			desc: "acc of wrong type",
			data: `{"client_id":"A","epoch":0,"global_epoch":1,"weight_file":"w","bias_file":"b","acc":"high","start":` + start + `}`,
			err:  fl.ErrMalformedMessage,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := fl.DecodeUpdate([]byte(tc.data))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := fl.EncodeGlobal(fl.GlobalRoundMessage{NEpochs: 1, CurrentEpoch: 2, WeightFile: "w", BiasFile: "b"})
	assert.ErrorIs(t, err, fl.ErrMalformedMessage)

	_, err = fl.EncodeUpdate(fl.ClientUpdateMessage{ClientID: "A", GlobalEpoch: 0, WeightFile: "w", BiasFile: "b"})
	assert.ErrorIs(t, err, fl.ErrMalformedMessage)
}

func TestEncodeUpdateNormalizesStart(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	m := fl.ClientUpdateMessage{
		ClientID:    "A",
		GlobalEpoch: 1,
		WeightFile:  "w",
		BiasFile:    "b",
		Start:       time.Date(2026, 5, 1, 12, 0, 0, 0, loc),
	}

	data, err := fl.EncodeUpdate(m)
	require.NoError(t, err)
	got, err := fl.DecodeUpdate(data)
	require.NoError(t, err)
	assert.True(t, m.Start.Equal(got.Start))
	assert.Equal(t, time.UTC, got.Start.Location())
}

func TestRegistration(t *testing.T) {
	cases := []struct {
		desc string
		data string
		id   string
		err  error
	}{
		{desc: "plain id", data: "client-1", id: "client-1"},
		{desc: "trailing newline", data: "client-1\n", id: "client-1"},
		{desc: "empty", data: "", err: fl.ErrMalformedMessage},
		{desc: "whitespace only", data: "  ", err: fl.ErrMalformedMessage},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			id, err := fl.DecodeRegistration([]byte(tc.data))
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.id, id)
		})
	}
}
