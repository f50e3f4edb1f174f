package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBackend(t *testing.T) {
	t.Run("defaults to subprocess", func(t *testing.T) {
		value, err := NormalizeBackend("")
		require.NoError(t, err)
		assert.Equal(t, BackendSubprocess, value)
	})

	t.Run("accepts api", func(t *testing.T) {
		value, err := NormalizeBackend("API")
		require.NoError(t, err)
		assert.Equal(t, BackendAPI, value)
	})

	t.Run("rejects unknown", func(t *testing.T) {
		_, err := NormalizeBackend("unknown")
		assert.Error(t, err)
	})
}

func TestResolveBackend(t *testing.T) {
	t.Run("cli overrides config", func(t *testing.T) {
		value, err := ResolveBackend("api", "subprocess")
		require.NoError(t, err)
		assert.Equal(t, BackendAPI, value)
	})

	t.Run("uses config when cli empty", func(t *testing.T) {
		value, err := ResolveBackend("", "api")
		require.NoError(t, err)
		assert.Equal(t, BackendAPI, value)
	})
}
