package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivertis/market-pipeline/internal/resilience"
)

func TestParseNumericBrazilian(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.234,56", 1234.56},
		{"R$ 350,50", 350.50},
		{"R$ 1.234.567,89", 1234567.89},
		{"6.650,00", 6650.00},
		{"-12,5", -12.5},
	}
	for _, tc := range cases {
		got, err := ParseNumeric(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseNumericInternational(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,234.56", 1234.56},
		{"USD 5.90", 5.90},
		{"42", 42},
		{"1,234,567.89", 1234567.89},
		{"0.5", 0.5},
	}
	for _, tc := range cases {
		got, err := ParseNumeric(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseNumericRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "n/d", "R$ --", "preço indisponível", "-"} {
		_, err := ParseNumeric(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, resilience.ErrInvalidValue), in)
	}
}
