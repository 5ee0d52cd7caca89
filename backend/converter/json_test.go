package converter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_JSONConverter_RoundTrip(t *testing.T) {
	type quote struct {
		Amount int    `json:"amount"`
		Note   string `json:"note"`
	}

	p, err := DefaultConverter.To(&quote{Amount: 42, Note: "draft"})
	require.NoError(t, err)

	var q quote
	require.NoError(t, DefaultConverter.From(p, &q))
	require.Equal(t, quote{Amount: 42, Note: "draft"}, q)
}

func Test_JSONConverter_PassesThroughRawMessages(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)

	p, err := DefaultConverter.To(raw)
	require.NoError(t, err)
	require.Equal(t, raw, p)

	p, err = DefaultConverter.To(nil)
	require.NoError(t, err)
	require.Nil(t, p)
}
