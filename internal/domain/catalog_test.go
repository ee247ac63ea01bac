package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectLogs(t *testing.T) {
	refs := []LogRef{
		{Callsign: "EF6T", URL: "https://example.test/ef6t.log"},
		{Callsign: "K3LR", URL: "https://example.test/k3lr.log"},
		{Callsign: "CN3A", URL: "https://example.test/cn3a.log"},
	}

	t.Run("empty selects all", func(t *testing.T) {
		got, err := SelectLogs(refs, nil)
		require.NoError(t, err)
		assert.Equal(t, refs, got)
	})

	t.Run("case insensitive in request order", func(t *testing.T) {
		got, err := SelectLogs(refs, []string{"cn3a", " EF6T "})
		require.NoError(t, err)
		assert.Equal(t, []LogRef{refs[2], refs[0]}, got)
	})

	t.Run("unknown with suggestion", func(t *testing.T) {
		_, err := SelectLogs(refs, []string{"EF6X"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownStation)
		assert.Contains(t, err.Error(), "did you mean EF6T?")
	})

	t.Run("unknown without suggestion", func(t *testing.T) {
		_, err := SelectLogs(refs, []string{"VK0EK"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownStation)
		assert.NotContains(t, err.Error(), "did you mean")
	})
}
