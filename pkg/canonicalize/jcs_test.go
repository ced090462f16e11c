package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_SortsKeysRecursively(t *testing.T) {
	b, err := JCS(map[string]any{
		"z": map[string]any{"y": "foo", "x": "bar"},
		"a": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	b, err := JCS(map[string]string{"note": "<b>refund</b> & credit"})
	require.NoError(t, err)
	assert.Equal(t, `{"note":"<b>refund</b> & credit"}`, string(b))
}

func TestJCS_Numbers(t *testing.T) {
	b, err := JCS(map[string]any{"num": json.Number("123.450"), "int": 6000, "f": 1.0})
	require.NoError(t, err)
	assert.Equal(t, `{"f":1,"int":6000,"num":123.45}`, string(b))
}

func TestCanonicalHash_StructAndMapAgree(t *testing.T) {
	type receipt struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	h1, err := CanonicalHash(map[string]any{"amount": 6000, "status": "succeeded"})
	require.NoError(t, err)
	h2, err := CanonicalHash(receipt{Status: "succeeded", Amount: 6000})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestJCS_MarshalError(t *testing.T) {
	_, err := JCS(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
