package sqlitefile

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"
)

// Column describes one column of a table, in declaration order.
type Column struct {
	Name string
	Type string
	// IntegerPrimaryKey marks the single column (if any) that SQLite
	// treats as an alias for the table's rowid.
	IntegerPrimaryKey bool
}

// TableSchema is a catalog entry for one table.
type TableSchema struct {
	Name     string
	RootPage uint32
	Columns  []Column
	SQL      string
}

// ColumnIndex returns the position of name in the table's column list, or
// -1 if no such column exists. The comparison is case-insensitive, per
// SQLite's identifier rules.
func (t *TableSchema) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// RowidAliasColumn returns the index of the INTEGER PRIMARY KEY column, if
// the table declares one, and true; otherwise (-1, false).
func (t *TableSchema) RowidAliasColumn() (int, bool) {
	for i, c := range t.Columns {
		if c.IntegerPrimaryKey {
			return i, true
		}
	}
	return -1, false
}

// IndexSchema is a catalog entry for one index.
type IndexSchema struct {
	Name      string
	TableName string
	RootPage  uint32
	Columns   []string
	SQL       string
}

// Catalog is the database's schema: every table and index parsed out of the
// master page.
type Catalog struct {
	Tables  map[string]*TableSchema
	Indexes map[string][]*IndexSchema // keyed by table name
}

func newCatalog() *Catalog {
	return &Catalog{
		Tables:  make(map[string]*TableSchema),
		Indexes: make(map[string][]*IndexSchema),
	}
}

// TableNames returns every table name in the catalog, including
// sqlite_sequence and other internal tables, in no particular order.
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	return names
}

// LookupTable finds a table by name, matching identifiers
// case-insensitively per SQLite's convention (the same rule ColumnIndex
// applies to column names). The map is keyed by the name as declared, so a
// direct hit is tried first before falling back to a case-insensitive scan.
func (c *Catalog) LookupTable(name string) (*TableSchema, bool) {
	if t, ok := c.Tables[name]; ok {
		return t, true
	}
	for n, t := range c.Tables {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return nil, false
}

type masterRow struct {
	typ      string
	name     string
	tblName  string
	rootPage int64
	sql      string
}

// loadCatalog walks the master table (rooted at page 1) and builds the
// schema catalog, parsing each object's CREATE statement. A row that
// cannot be decoded, or whose SQL cannot be parsed, is logged and skipped
// rather than failing the whole
// load, since a single malformed or SQLite-dialect-specific object (a
// view, a trigger, an internal table) shouldn't make the rest of the
// schema unreachable.
func loadCatalog(bt *btreeReader, enc textEncoding, logger Logger) (*Catalog, error) {
	cat := newCatalog()
	var rows []masterRow

	err := bt.tableScan(1, minRowid, maxRowid, func(_ uint64, payload []byte) (bool, error) {
		values, err := decodeRecord(payload, enc)
		if err != nil {
			logger.Warnf("schema: skipping undecodable master table row: %v", err)
			return true, nil
		}
		if len(values) < 5 {
			logger.Warnf("schema: skipping master table row with %d columns", len(values))
			return true, nil
		}
		row := masterRow{}
		if s, ok := values[0].Text(); ok {
			row.typ = s
		}
		if s, ok := values[1].Text(); ok {
			row.name = s
		}
		if s, ok := values[2].Text(); ok {
			row.tblName = s
		}
		if n, ok := values[3].Int64(); ok {
			row.rootPage = n
		}
		if s, ok := values[4].Text(); ok {
			row.sql = s
		}
		rows = append(rows, row)
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load schema")
	}

	for _, row := range rows {
		switch row.typ {
		case "table":
			ts, err := parseCreateTable(row.sql)
			if err != nil {
				logger.Warnf("schema: skipping unparseable table %q: %v", row.name, err)
				continue
			}
			ts.Name = row.name
			ts.RootPage = uint32(row.rootPage)
			ts.SQL = row.sql
			cat.Tables[row.name] = ts
		case "index":
			if row.sql == "" {
				// Auto-created indexes (e.g. for UNIQUE constraints) have
				// no SQL text and aren't queryable by name.
				continue
			}
			is, err := parseCreateIndex(row.sql)
			if err != nil {
				logger.Warnf("schema: skipping unparseable index %q: %v", row.name, err)
				continue
			}
			is.Name = row.name
			is.TableName = row.tblName
			is.RootPage = uint32(row.rootPage)
			is.SQL = row.sql
			cat.Indexes[row.tblName] = append(cat.Indexes[row.tblName], is)
		}
	}

	// Drop indexes that reference a table the catalog doesn't know about;
	// they can't be planned against and would otherwise dangle.
	for tbl := range cat.Indexes {
		if _, ok := cat.Tables[tbl]; !ok {
			logger.Warnf("schema: dropping indexes on unknown table %q", tbl)
			delete(cat.Indexes, tbl)
		}
	}

	return cat, nil
}

// normalizeSQLiteDDL rewrites SQLite-only syntax that the bundled SQL
// parser, built for a MySQL grammar, doesn't accept, while leaving the
// statement's meaning intact.
func normalizeSQLiteDDL(sql string) string {
	normalized := sql
	for _, from := range []string{"PRIMARY KEY AUTOINCREMENT", "primary key autoincrement"} {
		normalized = strings.ReplaceAll(normalized, from, "AUTO_INCREMENT PRIMARY KEY")
	}
	normalized = strings.ReplaceAll(normalized, "WITHOUT ROWID", "")
	normalized = strings.ReplaceAll(normalized, "without rowid", "")
	return normalized
}

// parseCreateTable parses a CREATE TABLE statement into a TableSchema. It
// reuses a MySQL-grammar SQL parser against SQLite's DDL by normalizing
// away the handful of SQLite-only keywords that trip it up.
func parseCreateTable(sql string) (*TableSchema, error) {
	stmt, err := sqlparser.Parse(normalizeSQLiteDDL(sql))
	if err != nil {
		return nil, errors.Wrap(err, "parse CREATE TABLE")
	}
	ddl, ok := stmt.(*sqlparser.DDL)
	if !ok || ddl.Action != "create" || ddl.TableSpec == nil {
		return nil, errors.New("not a CREATE TABLE statement")
	}

	pkCol := singleIntegerPrimaryKeyColumn(sql)

	columns := make([]Column, len(ddl.TableSpec.Columns))
	for i, col := range ddl.TableSpec.Columns {
		name := col.Name.String()
		columns[i] = Column{
			Name:              name,
			Type:              col.Type.Type,
			IntegerPrimaryKey: strings.EqualFold(name, pkCol) && strings.EqualFold(col.Type.Type, "integer"),
		}
	}
	return &TableSchema{Columns: columns}, nil
}

var integerPrimaryKeyPattern = regexp.MustCompile(`(?is)[` + "`\"" + `\[]?([A-Za-z_]\w*)[` + "`\"" + `\]]?\s+INTEGER\s+PRIMARY\s+KEY\b`)

// singleIntegerPrimaryKeyColumn returns the column name declared
// "INTEGER PRIMARY KEY", if the table has exactly one, per §3's rowid
// aliasing rule. This is read directly off the source SQL rather than the
// parsed AST: the bundled SQL parser exposes column name and declared type
// reliably, but its column-constraint fields aren't part of the surface
// this module otherwise relies on.
func singleIntegerPrimaryKeyColumn(sql string) string {
	m := integerPrimaryKeyPattern.FindStringSubmatch(sql)
	if m == nil {
		return ""
	}
	return m[1]
}

var createIndexPattern = regexp.MustCompile(`(?is)^\s*CREATE\s+(UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?[` + "`\"" + `\[]?([A-Za-z_][\w]*)[` + "`\"" + `\]]?\s+ON\s+[` + "`\"" + `\[]?([A-Za-z_][\w]*)[` + "`\"" + `\]]?\s*\(([^)]*)\)`)

// parseCreateIndex parses a CREATE INDEX statement. The bundled SQL parser
// targets DML and CREATE TABLE; CREATE INDEX's grammar is simple enough
// (name, table, a parenthesized column list) that a direct pattern match is
// more reliable here than coercing it through a foreign grammar.
func parseCreateIndex(sql string) (*IndexSchema, error) {
	m := createIndexPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, errors.New("CREATE INDEX statement did not match the expected grammar")
	}
	var columns []string
	for _, part := range strings.Split(m[4], ",") {
		col := strings.Trim(strings.TrimSpace(part), "`\"[]")
		if idx := strings.IndexAny(col, " \t"); idx >= 0 {
			col = col[:idx] // drop COLLATE/ASC/DESC qualifiers
		}
		if col != "" {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		return nil, errors.New("CREATE INDEX statement declares no columns")
	}
	return &IndexSchema{Columns: columns}, nil
}
