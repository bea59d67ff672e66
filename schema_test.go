package sqlitefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSQLiteDDL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"autoincrement rewritten",
			"CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)",
			"CREATE TABLE t (id INTEGER AUTO_INCREMENT PRIMARY KEY)",
		},
		{
			"lowercase autoincrement rewritten",
			"CREATE TABLE t (id INTEGER primary key autoincrement)",
			"CREATE TABLE t (id INTEGER AUTO_INCREMENT PRIMARY KEY)",
		},
		{
			"without rowid stripped",
			"CREATE TABLE t (id INTEGER PRIMARY KEY) WITHOUT ROWID",
			"CREATE TABLE t (id INTEGER PRIMARY KEY) ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSQLiteDDL(tt.in))
		})
	}
}

func TestSingleIntegerPrimaryKeyColumn(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			"plain column",
			"CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)",
			"id",
		},
		{
			"quoted column",
			`CREATE TABLE widgets ("id" INTEGER PRIMARY KEY, name TEXT)`,
			"id",
		},
		{
			"no integer primary key",
			"CREATE TABLE widgets (name TEXT, price REAL)",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, singleIntegerPrimaryKeyColumn(tt.sql))
		})
	}
}

func TestParseCreateIndex(t *testing.T) {
	idx, err := parseCreateIndex("CREATE INDEX idx_widgets_name ON widgets (name)")
	assert := assert.New(t)
	if assert.NoError(err) {
		assert.Equal([]string{"name"}, idx.Columns)
	}

	idx, err = parseCreateIndex("CREATE UNIQUE INDEX idx_widgets_multi ON widgets (name ASC, price DESC)")
	if assert.NoError(err) {
		assert.Equal([]string{"name", "price"}, idx.Columns)
	}

	_, err = parseCreateIndex("CREATE TABLE widgets (id INTEGER)")
	assert.Error(err)
}

func TestTableSchemaColumnIndex(t *testing.T) {
	table := &TableSchema{
		Columns: []Column{
			{Name: "id", IntegerPrimaryKey: true},
			{Name: "Name"},
			{Name: "price"},
		},
	}
	assert.Equal(t, 0, table.ColumnIndex("id"))
	assert.Equal(t, 1, table.ColumnIndex("name")) // case-insensitive
	assert.Equal(t, -1, table.ColumnIndex("missing"))

	idx, ok := table.RowidAliasColumn()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestRowidAliasColumnAbsent(t *testing.T) {
	table := &TableSchema{Columns: []Column{{Name: "name"}}}
	_, ok := table.RowidAliasColumn()
	assert.False(t, ok)
}
