package sqlitefile

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// pager owns the file handle and a bounded LRU cache of raw page bytes.
// Pages are 1-indexed; the B-tree page header on page 1 begins at offset
// headerSize rather than 0, but cell-pointer-array offsets on every page
// (including page 1) are measured from the start of the page. Callers use
// btreeHeaderOffset to find where the B-tree header starts within a page's
// raw bytes.
type pager struct {
	file       *os.File
	pageSize   int
	usableSize int
	pageCount  uint32
	cache      *lru.Cache[uint32, []byte]
}

func newPager(file *os.File, pageSize, usableSize int, pages uint32, capacity int) (*pager, error) {
	cache, err := lru.New[uint32, []byte](capacity)
	if err != nil {
		return nil, newFormatError("failed to create page cache", err)
	}
	return &pager{file: file, pageSize: pageSize, usableSize: usableSize, pageCount: pages, cache: cache}, nil
}

// page returns the raw bytes of page pageNo, exactly pageSize long. The
// returned slice is owned by the pager's cache; callers must not mutate it,
// and must copy out anything they intend to keep past the next cache
// eviction of this entry.
func (p *pager) page(pageNo uint32) ([]byte, error) {
	if pageNo == 0 || pageNo > p.pageCount {
		return nil, newCorruptError("page number out of range", nil)
	}

	if buf, ok := p.cache.Get(pageNo); ok {
		return buf, nil
	}

	buf := make([]byte, p.pageSize)
	offset := int64(pageNo-1) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, offset); err != nil {
		return nil, wrapIOError("read page", err)
	}

	p.cache.Add(pageNo, buf)
	return buf, nil
}

// btreeHeaderOffset is where the B-tree page header starts within a page's
// raw bytes: 100 for page 1 (after the database header), 0 otherwise. Cell
// pointer array entries, on every page, are offsets from the start of the
// page (offset 0), not from this value.
func btreeHeaderOffset(pageNo uint32) int {
	if pageNo == 1 {
		return headerSize
	}
	return 0
}

func (p *pager) close() error {
	return p.file.Close()
}
