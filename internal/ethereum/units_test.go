package ethereum

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.45", 6, "450000"},
		{"2", 18, "2000000000000000000"},
		{".5", 1, "5"},
		{"1.", 2, "100"},
		{"0", 18, "0"},
		{"1.23456789", 6, "1234568"},
		{"1.2345644", 6, "1234564"},
		{"-1.5", 2, "-150"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), "ParseUnits(%q, %d)", tc.in, tc.decimals)
	}
}

func TestParseUnits_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1e18", "0x10", "1,5"} {
		_, err := ParseUnits(in, 18)
		assert.Error(t, err, "expected %q to be rejected", in)
	}
}

func TestFloatToUnits(t *testing.T) {
	got, err := FloatToUnits(0.123, 18)
	require.NoError(t, err)
	assert.Equal(t, "123000000000000000", got.String())

	got, err = FloatToUnits(0.1, 6)
	require.NoError(t, err)
	assert.Equal(t, "100000", got.String())
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1", FormatUnits(big.NewInt(1_000_000), 6))
	assert.Equal(t, "0.45", FormatUnits(big.NewInt(450_000), 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "-1.5", FormatUnits(big.NewInt(-150), 2))
	assert.Equal(t, "0", FormatUnits(big.NewInt(0), 18))
}
