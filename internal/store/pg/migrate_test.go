package pg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/authgate/migrations/postgres"
)

func TestEmbeddedMigrations(t *testing.T) {
	up, err := listSQL(migrations.FS, "_up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, up)
	for _, f := range up {
		assert.True(t, strings.HasSuffix(f, "_up.sql"))
	}
	down, err := listSQL(migrations.FS, "_down.sql")
	require.NoError(t, err)
	assert.Len(t, down, len(up))
}
