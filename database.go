package sqlitefile

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// DB is a read-only handle onto a SQLite database file. It owns the
// underlying file descriptor and the page cache built over it; callers
// must call Close when done.
type DB struct {
	file     *os.File
	header   *databaseHeader
	pager    *pager
	bt       *btreeReader
	catalog  *Catalog
	planner  *queryPlanner
	cfg      *config
}

// Open opens path as a SQLite database file, parses its header, and loads
// its schema catalog. The returned DB is read-only and safe to use from a
// single goroutine at a time; it does not itself start any background
// work.
func Open(path string, opts ...Option) (*DB, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, wrapIOError("open database file", err)
	}

	raw := make([]byte, headerSize)
	if _, err := file.ReadAt(raw, 0); err != nil {
		file.Close()
		return nil, wrapIOError("read database header", err)
	}
	header, err := parseDatabaseHeader(raw)
	if err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, wrapIOError("stat database file", err)
	}
	pages := pageCount(header, info.Size())

	pg, err := newPager(file, int(header.pageSize()), header.usableSize(), pages, cfg.pageCacheCapacity)
	if err != nil {
		file.Close()
		return nil, err
	}

	bt := &btreeReader{db: pg}
	cat, err := loadCatalog(bt, header.TextEncoding, cfg.logger)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "open database")
	}

	planner := &queryPlanner{pager: pg, bt: bt, cat: cat, enc: header.TextEncoding}

	cfg.logger.Debugf("opened %s: page size %d, %d pages, %d tables", path, pg.pageSize, pages, len(cat.Tables))

	return &DB{
		file:    file,
		header:  header,
		pager:   pg,
		bt:      bt,
		catalog: cat,
		planner: planner,
		cfg:     cfg,
	}, nil
}

// Close releases the underlying file descriptor.
func (db *DB) Close() error {
	return db.pager.close()
}

// TableInfo summarizes one table in the database's schema.
type TableInfo struct {
	Name    string
	Columns []Column
}

// Tables lists every table in the schema, in no particular order.
func (db *DB) Tables(ctx context.Context) ([]TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos := make([]TableInfo, 0, len(db.catalog.Tables))
	for _, t := range db.catalog.Tables {
		infos = append(infos, TableInfo{Name: t.Name, Columns: t.Columns})
	}
	return infos, nil
}

// TableSchema returns the parsed schema for one table.
func (db *DB) TableSchema(ctx context.Context, name string) (*TableSchema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := db.catalog.LookupTable(name)
	if !ok {
		return nil, &TableNotFoundError{Name: name}
	}
	return t, nil
}

// CountTableRows returns the number of rows in a table.
func (db *DB) CountTableRows(ctx context.Context, tableName string) (uint64, error) {
	return db.planner.CountTableRows(ctx, tableName)
}

// ExecuteQuery runs a parsed Select and returns its result set.
func (db *DB) ExecuteQuery(ctx context.Context, sel *Select) (*ResultSet, error) {
	return db.planner.Execute(ctx, sel)
}
