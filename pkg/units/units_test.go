package units

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUnits(t *testing.T) {
	assert.True(t, ToUnits(1_500_000_000).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, ToUnits(1).Equal(decimal.RequireFromString("0.000000001")))
	assert.True(t, ToUnits(0).IsZero())
}

func TestFromUnits_Truncates(t *testing.T) {
	assert.Equal(t, int64(1_500_000_000), FromUnits(decimal.RequireFromString("1.5")))
	assert.Equal(t, int64(1), FromUnits(decimal.RequireFromString("0.0000000019")))
	assert.Equal(t, int64(0), FromUnits(decimal.RequireFromString("0.0000000009")))
}

func TestRoundTrip_NeverGrows(t *testing.T) {
	for _, v := range []int64{0, 1, 7, 999, 1000, 123_456_789, 1_000_000_000, 9_876_543_210_123} {
		got := FromUnits(ToUnits(v))
		assert.LessOrEqual(t, got, v)
		assert.Equal(t, v, got, "integer amounts survive the round trip")
	}
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("0.25")
	require.NoError(t, err)
	assert.Equal(t, int64(250_000_000), v)

	_, err = ParseUnits("lots")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2.5", Format(2_500_000_000))
	assert.Equal(t, "0", Format(0))
}
