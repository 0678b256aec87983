package catalogsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	s := Settings{
		"host":      "db",
		"empty":     "",
		"yaml_port": 5433,
		"json_port": float64(1434),
		"encrypt":   "strict",
		"trust":     false,
		"schemas":   []any{"public", "sales"},
		"one":       "dbo",
		"bad":       []any{"x", 2},
	}

	host, err := s.Require("host")
	require.NoError(t, err)
	assert.Equal(t, "db", host)

	_, err = s.Require("empty")
	assert.EqualError(t, err, "empty is required")
	_, ok := s.String("missing")
	assert.False(t, ok)

	assert.Equal(t, 5433, s.Int("yaml_port", 0))
	assert.Equal(t, 1434, s.Int("json_port", 0))
	assert.Equal(t, 42, s.Int("missing", 42))

	assert.True(t, s.Bool("encrypt", false))
	assert.False(t, s.Bool("trust", true))
	assert.True(t, s.Bool("missing", true))

	schemas, err := s.Strings("schemas")
	require.NoError(t, err)
	assert.Equal(t, []string{"public", "sales"}, schemas)

	one, err := s.Strings("one")
	require.NoError(t, err)
	assert.Equal(t, []string{"dbo"}, one)

	none, err := s.Strings("missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.Strings("bad")
	assert.EqualError(t, err, "bad must be a list of strings")
}
