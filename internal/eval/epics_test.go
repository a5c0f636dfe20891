package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpicsString(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		encoding []string
		want     string
	}{
		{"bytes stop at first zero", []byte{'a', 'b', 'c', 0, 'x'}, nil, "abc"},
		{"no terminator", []byte("hello"), nil, "hello"},
		{"leading zero", []byte{0, 'a'}, nil, ""},
		{"int waveform", []int{72, 105, 0, 0}, nil, "Hi"},
		{"signed char waveform", []int8{80, 86, 0}, nil, "PV"},
		{"float waveform", []float64{79, 75, 0}, nil, "OK"},
		{"explicit utf-8", []byte("caf\xc3\xa9\x00"), []string{"utf-8"}, "café"},
		{"latin1", []byte{'c', 'a', 'f', 0xe9, 0}, []string{"latin1"}, "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := epicsString(tt.value, tt.encoding...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEpicsString_Errors(t *testing.T) {
	_, err := epicsString([]byte{0xff, 0xfe}, "utf-8")
	assert.Error(t, err)

	_, err = epicsString([]byte("abc"), "no-such-encoding")
	assert.Error(t, err)

	_, err = epicsString(42.0)
	assert.Error(t, err)
}

func TestEpicsString_FromExpression(t *testing.T) {
	got, err := New("epics_string(wf)").Evaluate(map[string]any{
		"wf": []int{77, 111, 116, 111, 114, 0, 63},
	})
	require.NoError(t, err)
	assert.Equal(t, "Motor", got)

	got, err = New("epics_string(wf, 'latin1') + '!'").Evaluate(map[string]any{
		"wf": []byte{'o', 'k', 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok!", got)
}
