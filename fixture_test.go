package sqlitefile

import (
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureValue is a column value used when hand-assembling a record for a
// test fixture; it mirrors the subset of SQLite's serial types the tests
// exercise.
type fixtureValue struct {
	null bool
	i    *int64
	f    *float64
	text *string
}

func fvNull() fixtureValue          { return fixtureValue{null: true} }
func fvInt(v int64) fixtureValue    { return fixtureValue{i: &v} }
func fvReal(v float64) fixtureValue { return fixtureValue{f: &v} }
func fvText(v string) fixtureValue  { return fixtureValue{text: &v} }

// appendVarint mirrors the production varint format but is implemented
// independently, so a bug in the decoder wouldn't be masked by reusing its
// encoder. Fixtures in this package never need values large enough to hit
// the 9-byte encoding, so that case is not handled here.
func appendVarint(buf []byte, v uint64) []byte {
	var tmp [9]byte
	if v <= 0x7f {
		return append(buf, byte(v))
	}
	n := 0
	rest := v
	for rest > 0 && n < 8 {
		tmp[n] = byte(rest & 0x7f)
		rest >>= 7
		n++
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = tmp[n-1-i] | 0x80
	}
	out[n-1] &^= 0x80
	if rest != 0 {
		out = append(out, byte(rest))
	}
	return append(buf, out...)
}

func buildFixtureRecord(values []fixtureValue) []byte {
	var header []byte
	var body []byte
	for _, v := range values {
		switch {
		case v.null:
			header = appendVarint(header, 0)
		case v.i != nil:
			header = appendVarint(header, 1)
			body = append(body, byte(*v.i))
		case v.f != nil:
			header = appendVarint(header, 7)
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(*v.f))
			body = append(body, buf[:]...)
		case v.text != nil:
			header = appendVarint(header, uint64(13+2*len(*v.text)))
			body = append(body, []byte(*v.text)...)
		}
	}
	var headerLenPrefix []byte
	headerLenPrefix = appendVarint(headerLenPrefix, uint64(len(header)+1))
	record := append(headerLenPrefix, header...)
	record = append(record, body...)
	return record
}

func buildLeafCell(rowid int64, record []byte) []byte {
	var cell []byte
	cell = appendVarint(cell, uint64(len(record)))
	cell = appendVarint(cell, uint64(rowid))
	return append(cell, record...)
}

// writePage fills buf[hdr:] with a B-tree leaf page header (table or
// index), cell pointer array, and cell bytes, placed contiguously after the
// pointer array (a real SQLite writer packs cell content from the end of
// the page instead, but nothing this reader checks depends on that
// placement).
func writePage(buf []byte, hdr int, pageType byte, cells [][]byte) {
	buf[hdr] = pageType
	binary.BigEndian.PutUint16(buf[hdr+3:hdr+5], uint16(len(cells)))
	ptrStart := hdr + 8
	offset := ptrStart + 2*len(cells)
	for i, c := range cells {
		binary.BigEndian.PutUint16(buf[ptrStart+2*i:ptrStart+2*i+2], uint16(offset))
		copy(buf[offset:], c)
		offset += len(c)
	}
}

func writeLeafPage(buf []byte, hdr int, cells [][]byte) {
	writePage(buf, hdr, pageTypeTableLeaf, cells)
}

// buildIndexLeafCell builds an index-leaf cell: a varint payload length
// followed by the record bytes, with no separate rowid varint — the index
// record's trailing column carries the rowid instead.
func buildIndexLeafCell(record []byte) []byte {
	var cell []byte
	cell = appendVarint(cell, uint64(len(record)))
	return append(cell, record...)
}

func writeIndexLeafPage(buf []byte, hdr int, cells [][]byte) {
	writePage(buf, hdr, pageTypeIndexLeaf, cells)
}

func buildFixtureHeader(pageSize uint16, pageCount uint32) []byte {
	h := make([]byte, headerSize)
	copy(h[0:16], []byte(magicString))
	binary.BigEndian.PutUint16(h[16:18], pageSize)
	h[18], h[19], h[20] = 1, 1, 0
	h[21], h[22], h[23] = 64, 32, 32
	binary.BigEndian.PutUint32(h[24:28], 1) // change counter
	binary.BigEndian.PutUint32(h[28:32], pageCount)
	binary.BigEndian.PutUint32(h[44:48], 4) // schema format
	binary.BigEndian.PutUint32(h[56:60], 1) // UTF-8
	binary.BigEndian.PutUint32(h[92:96], 1) // version-valid-for == change counter
	return h
}

// newFixtureDB writes a minimal two-page SQLite file: page 1 is the master
// table with a single "widgets" table entry rooted at page 2; page 2 is
// that table's leaf page holding three rows. It returns the path to the
// file.
func newFixtureDB(t *testing.T) string {
	t.Helper()
	const pageSize = 512

	createSQL := "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, price REAL)"
	masterRecord := buildFixtureRecord([]fixtureValue{
		fvText("table"),
		fvText("widgets"),
		fvText("widgets"),
		fvInt(2),
		fvText(createSQL),
	})
	masterCell := buildLeafCell(1, masterRecord)

	page1 := make([]byte, pageSize)
	copy(page1[:headerSize], buildFixtureHeader(pageSize, 2))
	writeLeafPage(page1, headerSize, [][]byte{masterCell})

	rows := []struct {
		rowid int64
		name  string
		price float64
	}{
		{1, "bolt", 1.5},
		{2, "nut", 0.25},
		{3, "screw", 0.1},
	}
	var cells [][]byte
	for _, r := range rows {
		rec := buildFixtureRecord([]fixtureValue{fvNull(), fvText(r.name), fvReal(r.price)})
		cells = append(cells, buildLeafCell(r.rowid, rec))
	}
	page2 := make([]byte, pageSize)
	writeLeafPage(page2, 0, cells)

	path := t.TempDir() + "/fixture.db"
	data := append(page1, page2...)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// newFixtureDBWithIndex builds the same "widgets" table as newFixtureDB
// plus a third page holding an index-leaf B-tree for
// "idx_widgets_name ON widgets (name)", so tests can exercise indexSeek and
// the planner's index path end to end. It returns the path to the file.
func newFixtureDBWithIndex(t *testing.T) string {
	t.Helper()
	const pageSize = 512

	tableSQL := "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, price REAL)"
	indexSQL := "CREATE INDEX idx_widgets_name ON widgets (name)"

	masterRows := []struct {
		typ, name, tblName string
		rootPage           int64
		sql                string
	}{
		{"table", "widgets", "widgets", 2, tableSQL},
		{"index", "idx_widgets_name", "widgets", 3, indexSQL},
	}
	var masterCells [][]byte
	for i, r := range masterRows {
		rec := buildFixtureRecord([]fixtureValue{
			fvText(r.typ), fvText(r.name), fvText(r.tblName), fvInt(r.rootPage), fvText(r.sql),
		})
		masterCells = append(masterCells, buildLeafCell(int64(i+1), rec))
	}

	page1 := make([]byte, pageSize)
	copy(page1[:headerSize], buildFixtureHeader(pageSize, 3))
	writeLeafPage(page1, headerSize, masterCells)

	rows := []struct {
		rowid int64
		name  string
		price float64
	}{
		{1, "bolt", 1.5},
		{2, "nut", 0.25},
		{3, "screw", 0.1},
	}
	var tableCells [][]byte
	for _, r := range rows {
		rec := buildFixtureRecord([]fixtureValue{fvNull(), fvText(r.name), fvReal(r.price)})
		tableCells = append(tableCells, buildLeafCell(r.rowid, rec))
	}
	page2 := make([]byte, pageSize)
	writeLeafPage(page2, 0, tableCells)

	// Index entries are (name, rowid), ordered ascending by name — "bolt" <
	// "nut" < "screw" is already the row declaration order above.
	var indexCells [][]byte
	for _, r := range rows {
		rec := buildFixtureRecord([]fixtureValue{fvText(r.name), fvInt(r.rowid)})
		indexCells = append(indexCells, buildIndexLeafCell(rec))
	}
	page3 := make([]byte, pageSize)
	writeIndexLeafPage(page3, 0, indexCells)

	path := t.TempDir() + "/fixture_idx.db"
	data := append(page1, page2...)
	data = append(data, page3...)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// writeTempPages concatenates raw page buffers into a single file and
// returns its path, for tests that exercise the pager directly without a
// full database header.
func writeTempPages(t *testing.T, pageSize int, pages [][]byte) string {
	t.Helper()
	var data []byte
	for _, p := range pages {
		data = append(data, p...)
	}
	path := t.TempDir() + "/pages.db"
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func openTestPager(t *testing.T, path string, pageSize int, pages uint32) *pager {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	pg, err := newPager(f, pageSize, pageSize, pages, defaultPageCacheCapacity)
	require.NoError(t, err)
	return pg
}
