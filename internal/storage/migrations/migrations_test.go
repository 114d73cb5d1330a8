package migrations

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/010_indexes.sql": {Data: []byte("CREATE INDEX i ON t (x);")},
		"pg/002_second.sql":  {Data: []byte("CREATE TABLE b (y INT);")},
		"pg/001_first.sql":   {Data: []byte("CREATE TABLE a (x INT);")},
		"pg/003_empty.sql":   {Data: []byte("  \n")},
		"pg/README.md":       {Data: []byte("notes")},
	}

	all, err := Load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint32{1, 2, 10}, []uint32{all[0].Version, all[1].Version, all[2].Version})
	assert.Equal(t, "010_indexes.sql", all[2].Name)
	assert.Equal(t, "001 001_first.sql", all[0].String())
}

func TestLoad_RejectsBadNames(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"no prefix", "ledger.sql"},
		{"non numeric", "abc_ledger.sql"},
		{"zero version", "000_ledger.sql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{"m/" + tt.file: {Data: []byte("SELECT 1;")}}
			_, err := Load(fsys, "m")
			assert.Error(t, err)
		})
	}
}

func TestLoad_RejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.sql":  {Data: []byte("SELECT 1;")},
		"m/0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := Load(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 1")
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := Pending(all, map[uint32]bool{1: true, 3: true})
	require.Len(t, got, 1)
	assert.Equal(t, uint32(2), got[0].Version)

	assert.Len(t, Pending(all, nil), 3)
}

func TestStatements(t *testing.T) {
	m := Migration{Name: "001_x.sql", SQL: `
-- it's a comment; ignored
CREATE TABLE a (x Int32);

CREATE TABLE b (
    y String
);
`}
	stmts, err := statements(m)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int32)", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))

	_, err = statements(Migration{Name: "002_y.sql", SQL: "-- only a comment\n"})
	assert.Error(t, err)
}

func TestCheckLiterals(t *testing.T) {
	assert.NoError(t, checkLiterals("SELECT 'a''b' FROM t;"))
	assert.ErrorIs(t, checkLiterals("SELECT 'a;b' FROM t;"), errSemicolonInLiteral)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/staking")
	require.NoError(t, err)
	assert.Equal(t, "staking", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsValid(t *testing.T) {
	pg, err := Load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pg), 2)
	assert.Equal(t, uint32(1), pg[0].Version)
	assert.Equal(t, "002_custody.sql", pg[1].Name)

	ch, err := Load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		stmts, err := statements(m)
		require.NoError(t, err, m.Name)
		assert.NotEmpty(t, stmts, m.Name)
	}
}
