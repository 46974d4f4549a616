package relay

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lnrelay/errors"
)

func TestStampSource(t *testing.T) {
	type event struct {
		Type   string `json:"type"`
		Amount int64  `json:"amount"`
	}

	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"text frame", `{"type":"payment-sent","amount":10}`, `{"type":"payment-sent","amount":10,"source":"ECL"}`},
		{"bytes", []byte(`{"type":"a"}`), `{"type":"a","source":"ECL"}`},
		{"raw message", json.RawMessage(`{"type":"b"}`), `{"type":"b","source":"ECL"}`},
		{"map", map[string]any{"type": "c"}, `{"type":"c","source":"ECL"}`},
		{"struct", event{Type: "d", Amount: 5}, `{"type":"d","amount":5,"source":"ECL"}`},
		{"existing source overwritten", `{"source":"LND"}`, `{"source":"ECL"}`},
		{"nested values kept", `{"a":{"b":[1,2]},"c":null}`, `{"a":{"b":[1,2]},"c":null,"source":"ECL"}`},
		{"surrounding whitespace", " \n{\"type\":\"e\"}\n ", `{"type":"e","source":"ECL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := stampSource(tt.payload, "ECL")
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestStampSource_PreservesLargeNumbers(t *testing.T) {
	out, err := stampSource(`{"amountMsat":9007199254740993}`, "ECL")
	require.NoError(t, err)
	assert.Contains(t, string(out), "9007199254740993")
}

func TestStampSource_DoesNotMutateMap(t *testing.T) {
	in := map[string]any{"type": "x"}
	_, err := stampSource(in, "ECL")
	require.NoError(t, err)
	_, has := in[SourceField]
	assert.False(t, has)
}

func TestStampSource_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		sentinel error
	}{
		{"not json", "hello", errors.ErrParsingFailed},
		{"array", `[1,2,3]`, errors.ErrParsingFailed},
		{"string literal", `"text"`, errors.ErrParsingFailed},
		{"json null", `null`, errors.ErrInvalidData},
		{"nil payload", nil, errors.ErrInvalidData},
		{"trailing data", `{"a":1}{"b":2}`, errors.ErrParsingFailed},
		{"truncated", `{"a":`, errors.ErrParsingFailed},
		{"unmarshalable", func() {}, errors.ErrParsingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stampSource(tt.payload, "ECL")
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.True(t, stderrors.Is(err, tt.sentinel), "got %v", err)
		})
	}
}
