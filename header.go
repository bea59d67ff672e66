package sqlitefile

import (
	"bytes"
	"encoding/binary"
)

const (
	headerSize  = 100
	magicString = "SQLite format 3\x00"
)

// textEncoding is the text encoding declared at header offset 56.
type textEncoding uint32

const (
	encodingUTF8    textEncoding = 1
	encodingUTF16LE textEncoding = 2
	encodingUTF16BE textEncoding = 3
)

// databaseHeader is the 100-byte SQLite file header. Fields not needed by a
// read-only reader (freelist bookkeeping, vacuum settings) are kept only so
// the struct lines up byte-for-byte with binary.Read.
type databaseHeader struct {
	Magic           [16]byte
	PageSizeRaw     uint16
	WriteVersion    uint8
	ReadVersion     uint8
	ReservedBytes   uint8
	MaxPayloadFrac  uint8
	MinPayloadFrac  uint8
	LeafPayloadFrac uint8
	ChangeCounter   uint32
	SizeInPages     uint32
	FirstFreePage   uint32
	FreePageCount   uint32
	SchemaCookie    uint32
	SchemaFormat    uint32
	DefaultCacheSz  uint32
	LargestRootPage uint32
	TextEncoding    textEncoding
	UserVersion     uint32
	IncrVacuum      uint32
	ApplicationID   uint32
	_               [20]byte
	VersionValidFor uint32
	SQLiteVersion   uint32
}

// pageSize resolves the header's page-size convention: 1 means 65536.
func (h *databaseHeader) pageSize() int {
	if h.PageSizeRaw == 1 {
		return 65536
	}
	return int(h.PageSizeRaw)
}

// usableSize is the page size minus the per-page reserved region some
// extensions (not used here) carve off the end of each page.
func (h *databaseHeader) usableSize() int {
	return h.pageSize() - int(h.ReservedBytes)
}

func parseDatabaseHeader(raw []byte) (*databaseHeader, error) {
	if len(raw) < headerSize {
		return nil, newFormatError("file shorter than the 100-byte database header", nil)
	}

	var h databaseHeader
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), binary.BigEndian, &h); err != nil {
		return nil, newFormatError("failed to decode database header", err)
	}

	if !bytes.Equal(h.Magic[:], []byte(magicString)) {
		return nil, newFormatError("bad magic number", nil)
	}

	ps := h.pageSize()
	if ps < 512 || ps > 65536 || ps&(ps-1) != 0 {
		return nil, newFormatError("page size is not a power of two in [512, 65536]", nil)
	}

	if h.ReadVersion > 2 {
		return nil, newFormatError("unsupported file format read version", nil)
	}

	switch h.TextEncoding {
	case encodingUTF8, encodingUTF16LE, encodingUTF16BE:
	default:
		return nil, newFormatError("unrecognized text encoding in header", nil)
	}

	return &h, nil
}

// pageCount derives the authoritative page count: the in-header value when
// present and plausible, otherwise the file size divided by the page size
// (mirrors sqlite3's own fallback for databases written by older versions).
func pageCount(h *databaseHeader, fileSize int64) uint32 {
	ps := int64(h.pageSize())
	fromFile := uint32(fileSize / ps)
	if h.SizeInPages == 0 || h.ChangeCounter != h.VersionValidFor {
		return fromFile
	}
	return h.SizeInPages
}
