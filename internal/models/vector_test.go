package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorValueScanRoundTrip(t *testing.T) {
	in := Vector{0.25, -1.5, 3}
	val, err := in.Value()
	require.NoError(t, err)

	var out Vector
	require.NoError(t, out.Scan(val))
	assert.Equal(t, in, out)
}

func TestVectorNilValue(t *testing.T) {
	var v Vector
	val, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", val)
}

func TestVectorScanEmptyForms(t *testing.T) {
	for _, raw := range []interface{}{nil, "", "null", "[]", []byte("[]")} {
		var v Vector
		require.NoError(t, v.Scan(raw))
		assert.Nil(t, v)
	}
}

func TestVectorScanBytes(t *testing.T) {
	var v Vector
	require.NoError(t, v.Scan([]byte("[1.5,2.5]")))
	assert.Equal(t, Vector{1.5, 2.5}, v)
}

func TestVectorScanRejectsGarbage(t *testing.T) {
	var v Vector
	assert.Error(t, v.Scan("{oops"))
	assert.Error(t, v.Scan(42))
}
