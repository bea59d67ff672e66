package sqlitefile

import (
	"encoding/binary"
	"math"
	"math/bits"
	"sort"
)

const (
	pageTypeIndexInterior = 0x02
	pageTypeTableInterior = 0x05
	pageTypeIndexLeaf     = 0x0A
	pageTypeTableLeaf     = 0x0D
)

// minRowid and maxRowid bound an unrestricted table scan; SQLite rowids are
// signed 64-bit integers.
const (
	minRowid = math.MinInt64
	maxRowid = math.MaxInt64
)

type btreePageHeader struct {
	PageType         byte
	FirstFreeblock   uint16
	CellCount        uint16
	CellContentStart uint16
	FragmentedBytes  byte
	RightChild       uint32 // interior pages only
}

func (h *btreePageHeader) isLeaf() bool {
	return h.PageType == pageTypeTableLeaf || h.PageType == pageTypeIndexLeaf
}

func (h *btreePageHeader) isTable() bool {
	return h.PageType == pageTypeTableLeaf || h.PageType == pageTypeTableInterior
}

// headerByteLen is 8 for leaf pages, 12 for interior pages (the extra 4
// bytes are the right-most child pointer).
func (h *btreePageHeader) headerByteLen() int {
	if h.isLeaf() {
		return 8
	}
	return 12
}

func parseBtreePageHeader(buf []byte, offset int) (*btreePageHeader, error) {
	if offset+8 > len(buf) {
		return nil, newCorruptError("page too small for a B-tree page header", nil)
	}
	h := &btreePageHeader{
		PageType:         buf[offset],
		FirstFreeblock:   binary.BigEndian.Uint16(buf[offset+1 : offset+3]),
		CellCount:        binary.BigEndian.Uint16(buf[offset+3 : offset+5]),
		CellContentStart: binary.BigEndian.Uint16(buf[offset+5 : offset+7]),
		FragmentedBytes:  buf[offset+7],
	}
	switch h.PageType {
	case pageTypeTableLeaf, pageTypeIndexLeaf, pageTypeTableInterior, pageTypeIndexInterior:
	default:
		return nil, newCorruptError("unrecognized B-tree page type", nil)
	}
	if !h.isLeaf() {
		if offset+12 > len(buf) {
			return nil, newCorruptError("interior page too small for its right-child pointer", nil)
		}
		h.RightChild = binary.BigEndian.Uint32(buf[offset+8 : offset+12])
	}
	return h, nil
}

// cellPointers reads the cellCount big-endian u16 cell offsets that follow
// a B-tree page header. The offsets are measured from the start of the
// page, not from the header.
func cellPointers(buf []byte, headerOffset int, h *btreePageHeader) ([]int, error) {
	start := headerOffset + h.headerByteLen()
	need := start + int(h.CellCount)*2
	if need > len(buf) {
		return nil, newCorruptError("cell pointer array runs past end of page", nil)
	}
	ptrs := make([]int, h.CellCount)
	for i := range ptrs {
		off := binary.BigEndian.Uint16(buf[start+2*i : start+2*i+2])
		if off == 0 || int(off) >= len(buf) {
			return nil, newCorruptError("invalid cell pointer", nil)
		}
		ptrs[i] = int(off)
	}
	return ptrs, nil
}

// depthBound is the maximum number of B-tree levels a well-formed traversal
// should ever need to descend, per §4.3: ceil(log2(pageCount)) + safety.
func depthBound(pageCount uint32) int {
	if pageCount < 2 {
		return 64
	}
	return bits.Len32(pageCount-1) + 64
}

type btreeReader struct {
	db *pager
}

// --- table tree: full/ranged in-order scan -------------------------------

type tableInteriorCell struct {
	child uint32
	sep   int64
}

func decodeTableInteriorCells(buf []byte, headerOffset int, h *btreePageHeader, ptrs []int) ([]tableInteriorCell, error) {
	cells := make([]tableInteriorCell, len(ptrs))
	for i, off := range ptrs {
		if off+4 > len(buf) {
			return nil, newCorruptError("table interior cell truncated", nil)
		}
		child := binary.BigEndian.Uint32(buf[off : off+4])
		sep, _, err := readVarint(buf, off+4)
		if err != nil {
			return nil, err
		}
		cells[i] = tableInteriorCell{child: child, sep: int64(sep)}
	}
	_ = headerOffset
	return cells, nil
}

// childrenOverlapping returns, in order, the child page numbers whose key
// range can overlap [lo, hi], using a binary search over the ascending
// separator values to skip subtrees that fall entirely outside the range.
func childrenOverlapping(cells []tableInteriorCell, rightChild uint32, lo, hi int64) []uint32 {
	const noBound = math.MinInt64
	start := sort.Search(len(cells), func(i int) bool { return cells[i].sep >= lo })

	prevSep := int64(noBound)
	if start > 0 {
		prevSep = cells[start-1].sep
	}

	var out []uint32
	for i := start; i < len(cells); i++ {
		childMin := prevSep
		if childMin != noBound {
			childMin++
		} else {
			childMin = math.MinInt64
		}
		if childMin > hi {
			break
		}
		out = append(out, cells[i].child)
		prevSep = cells[i].sep
	}

	rightMin := int64(noBound)
	if len(cells) > 0 {
		rightMin = cells[len(cells)-1].sep
	}
	if rightMin != noBound {
		rightMin++
	} else {
		rightMin = math.MinInt64
	}
	if rightMin <= hi {
		out = append(out, rightChild)
	}
	return out
}

// tableScan performs an in-order traversal of the table tree rooted at
// root, restricted to rowids in [lo, hi], yielding (rowid, reassembled
// payload) to visit in strictly increasing rowid order. visit returns false
// to stop early. Traversal is realized as an explicit stack of frames
// rather than native recursion, and detects cycles along the current
// root-to-node path.
func (b *btreeReader) tableScan(root uint32, lo, hi int64, visit func(rowid uint64, payload []byte) (bool, error)) error {
	bound := depthBound(b.db.pageCount)

	type frame struct {
		pageNo   uint32
		children []uint32
		idx      int
	}

	var stack []frame
	onPath := make(map[uint32]bool)
	lastRowid := int64(math.MinInt64)
	haveLast := false
	stopped := false

	cur := root
	for !stopped {
		if cur == 0 {
			if len(stack) == 0 {
				break
			}
			top := &stack[len(stack)-1]
			if top.idx < len(top.children) {
				cur = top.children[top.idx]
				top.idx++
				continue
			}
			delete(onPath, top.pageNo)
			stack = stack[:len(stack)-1]
			continue
		}

		if onPath[cur] {
			return newCorruptError("cyclic table B-tree", nil)
		}
		if len(stack) > bound {
			return newCorruptError("table B-tree exceeds its depth bound", nil)
		}

		buf, err := b.db.page(cur)
		if err != nil {
			return err
		}
		hOff := btreeHeaderOffset(cur)
		h, err := parseBtreePageHeader(buf, hOff)
		if err != nil {
			return err
		}
		if !h.isTable() {
			return newCorruptError("expected a table B-tree page", nil)
		}
		ptrs, err := cellPointers(buf, hOff, h)
		if err != nil {
			return err
		}

		if h.isLeaf() {
			for _, off := range ptrs {
				payloadSize, n1, err := readVarint(buf, off)
				if err != nil {
					return err
				}
				rowid, n2, err := readVarint(buf, off+n1)
				if err != nil {
					return err
				}
				inPage := buf[off+n1+n2:]
				if int64(rowid) < lo || int64(rowid) > hi {
					continue
				}
				if haveLast && int64(rowid) <= lastRowid {
					return newCorruptError("table B-tree rowids are not strictly increasing", nil)
				}
				payload, err := b.db.reassemblePayload(inPage, payloadSize, kindTablePage)
				if err != nil {
					return err
				}
				cont, err := visit(rowid, payload)
				if err != nil {
					return err
				}
				lastRowid, haveLast = int64(rowid), true
				if !cont {
					stopped = true
					break
				}
			}
			cur = 0
			continue
		}

		cells, err := decodeTableInteriorCells(buf, hOff, h, ptrs)
		if err != nil {
			return err
		}
		children := childrenOverlapping(cells, h.RightChild, lo, hi)
		onPath[cur] = true
		stack = append(stack, frame{pageNo: cur, children: children})
		cur = 0
	}

	return nil
}

// tablePointLookup descends the table tree by comparing rowid against
// separator keys, returning the reassembled payload for an exact rowid
// match.
func (b *btreeReader) tablePointLookup(root uint32, rowid int64) ([]byte, bool, error) {
	bound := depthBound(b.db.pageCount)
	visited := make(map[uint32]bool)
	cur := root

	for depth := 0; ; depth++ {
		if visited[cur] {
			return nil, false, newCorruptError("cyclic table B-tree", nil)
		}
		if depth > bound {
			return nil, false, newCorruptError("table B-tree exceeds its depth bound", nil)
		}
		visited[cur] = true

		buf, err := b.db.page(cur)
		if err != nil {
			return nil, false, err
		}
		hOff := btreeHeaderOffset(cur)
		h, err := parseBtreePageHeader(buf, hOff)
		if err != nil {
			return nil, false, err
		}
		ptrs, err := cellPointers(buf, hOff, h)
		if err != nil {
			return nil, false, err
		}

		if h.isLeaf() {
			for _, off := range ptrs {
				payloadSize, n1, err := readVarint(buf, off)
				if err != nil {
					return nil, false, err
				}
				cellRowid, n2, err := readVarint(buf, off+n1)
				if err != nil {
					return nil, false, err
				}
				if int64(cellRowid) == rowid {
					payload, err := b.db.reassemblePayload(buf[off+n1+n2:], payloadSize, kindTablePage)
					if err != nil {
						return nil, false, err
					}
					return payload, true, nil
				}
			}
			return nil, false, nil
		}

		cells, err := decodeTableInteriorCells(buf, hOff, h, ptrs)
		if err != nil {
			return nil, false, err
		}
		next := h.RightChild
		for _, c := range cells {
			if rowid <= c.sep {
				next = c.child
				break
			}
		}
		cur = next
	}
}

// countLeafCells sums cell counts across every table-leaf page reachable
// from root, without decoding any record.
func (b *btreeReader) countLeafCells(root uint32) (uint64, error) {
	bound := depthBound(b.db.pageCount)
	var total uint64
	var walk func(pageNo uint32, depth int, onPath map[uint32]bool) error
	walk = func(pageNo uint32, depth int, onPath map[uint32]bool) error {
		if onPath[pageNo] {
			return newCorruptError("cyclic table B-tree", nil)
		}
		if depth > bound {
			return newCorruptError("table B-tree exceeds its depth bound", nil)
		}
		buf, err := b.db.page(pageNo)
		if err != nil {
			return err
		}
		hOff := btreeHeaderOffset(pageNo)
		h, err := parseBtreePageHeader(buf, hOff)
		if err != nil {
			return err
		}
		if h.isLeaf() {
			total += uint64(h.CellCount)
			return nil
		}
		ptrs, err := cellPointers(buf, hOff, h)
		if err != nil {
			return err
		}
		cells, err := decodeTableInteriorCells(buf, hOff, h, ptrs)
		if err != nil {
			return err
		}
		onPath[pageNo] = true
		for _, c := range cells {
			if err := walk(c.child, depth+1, onPath); err != nil {
				return err
			}
		}
		if err := walk(h.RightChild, depth+1, onPath); err != nil {
			return err
		}
		delete(onPath, pageNo)
		return nil
	}
	if err := walk(root, 0, make(map[uint32]bool)); err != nil {
		return 0, err
	}
	return total, nil
}

// --- index tree: equality seek --------------------------------------------

type indexEntry struct {
	key   []Value
	rowid uint64
}

func decodeIndexLeafEntry(buf []byte, off int, pg *pager, enc textEncoding) (indexEntry, error) {
	payloadSize, n, err := readVarint(buf, off)
	if err != nil {
		return indexEntry{}, err
	}
	payload, err := pg.reassemblePayload(buf[off+n:], payloadSize, kindIndexPage)
	if err != nil {
		return indexEntry{}, err
	}
	values, err := decodeRecord(payload, enc)
	if err != nil {
		return indexEntry{}, err
	}
	if len(values) == 0 {
		return indexEntry{}, newCorruptError("index record has no columns", nil)
	}
	rowid, ok := values[len(values)-1].Int64()
	if !ok {
		return indexEntry{}, newCorruptError("index record's trailing rowid column is not an integer", nil)
	}
	return indexEntry{key: values[:len(values)-1], rowid: uint64(rowid)}, nil
}

func decodeIndexInteriorEntry(buf []byte, off int, pg *pager, enc textEncoding) (uint32, indexEntry, error) {
	if off+4 > len(buf) {
		return 0, indexEntry{}, newCorruptError("index interior cell truncated", nil)
	}
	child := binary.BigEndian.Uint32(buf[off : off+4])
	entry, err := decodeIndexLeafEntry(buf, off+4, pg, enc)
	return child, entry, err
}

// comparePrefix compares probe against the leading len(probe) columns of
// key, lexicographically, using Value ordering.
func comparePrefix(probe, key []Value) int {
	for i, p := range probe {
		if i >= len(key) {
			return 1
		}
		if c := Compare(p, key[i]); c != 0 {
			return c
		}
	}
	return 0
}

// indexSeek descends an index tree choosing, at each interior node, the
// first child whose separator key is >= probe, then linearly scans the
// leaf it lands on while the leading columns equal probe.
func (b *btreeReader) indexSeek(root uint32, probe []Value, enc textEncoding, visit func(key []Value, rowid uint64) (bool, error)) error {
	bound := depthBound(b.db.pageCount)
	visited := make(map[uint32]bool)
	cur := root

	for depth := 0; ; depth++ {
		if visited[cur] {
			return newCorruptError("cyclic index B-tree", nil)
		}
		if depth > bound {
			return newCorruptError("index B-tree exceeds its depth bound", nil)
		}
		visited[cur] = true

		buf, err := b.db.page(cur)
		if err != nil {
			return err
		}
		hOff := btreeHeaderOffset(cur)
		h, err := parseBtreePageHeader(buf, hOff)
		if err != nil {
			return err
		}
		if h.isTable() {
			return newCorruptError("expected an index B-tree page", nil)
		}
		ptrs, err := cellPointers(buf, hOff, h)
		if err != nil {
			return err
		}

		if h.isLeaf() {
			for _, off := range ptrs {
				entry, err := decodeIndexLeafEntry(buf, off, b.db, enc)
				if err != nil {
					return err
				}
				c := comparePrefix(probe, entry.key)
				if c > 0 {
					continue
				}
				if c < 0 {
					break
				}
				cont, err := visit(entry.key, entry.rowid)
				if err != nil {
					return err
				}
				if !cont {
					return nil
				}
			}
			return nil
		}

		next := h.RightChild
		for _, off := range ptrs {
			child, entry, err := decodeIndexInteriorEntry(buf, off, b.db, enc)
			if err != nil {
				return err
			}
			if comparePrefix(probe, entry.key) <= 0 {
				next = child
				break
			}
		}
		cur = next
	}
}
