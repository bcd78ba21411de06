package mysql

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/authgate/migrations/mysql"
)

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (id INT);\n\n  DROP TABLE b ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "DROP TABLE b"}, got)
	assert.Empty(t, splitStatements(" ; \n"))
}

func TestListSQL_SortedBySuffix(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b_up.sql":   {Data: []byte("x")},
		"0001_a_up.sql":   {Data: []byte("x")},
		"0001_a_down.sql": {Data: []byte("x")},
		"README.md":       {Data: []byte("x")},
	}
	up, err := listSQL(fsys, "_up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a_up.sql", "0002_b_up.sql"}, up)
}

func TestEmbeddedMigrations(t *testing.T) {
	up, err := listSQL(migrations.FS, "_up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, up)
	down, err := listSQL(migrations.FS, "_down.sql")
	require.NoError(t, err)
	assert.Len(t, down, len(up))
}
