package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(nil)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "0001_init.sql", all[0])

	rest, err := pendingMigrations(map[string]bool{"0001_init.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, rest, "0001_init.sql")
}
