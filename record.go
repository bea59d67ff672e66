package sqlitefile

import "encoding/binary"

// pageKind identifies a B-tree page's role for the purposes of picking the
// overflow-threshold formula in §4.2; it folds interior/leaf distinctions
// that don't affect the formula (only table vs. index does).
type pageKind int

const (
	kindTablePage pageKind = iota
	kindIndexPage
)

// overflowThresholds computes X and M from SQLite's payload-overflow
// formula for a usable page size U.
func overflowThresholds(usableSize int, kind pageKind) (x, m int) {
	if kind == kindIndexPage {
		x = ((usableSize-12)*64/255) - 23
	} else {
		x = usableSize - 35
	}
	m = ((usableSize-12)*32/255) - 23
	return x, m
}

// splitPayload decides how many of the P declared payload bytes live local
// to the cell and how many spill onto the overflow chain.
func splitPayload(declared uint64, usableSize int, kind pageKind) (local int, overflow int) {
	x, m := overflowThresholds(usableSize, kind)
	p := int(declared)
	if p <= x {
		return p, 0
	}
	k := m + (p-m)%(usableSize-4)
	if k <= x {
		local = k
	} else {
		local = m
	}
	return local, p - local
}

// readOverflowChain follows the overflow chain starting at page `first`,
// collecting `need` bytes. Each overflow page begins with a 4-byte
// big-endian pointer to the next page (0 terminates the chain) followed by
// usableSize-4 bytes of payload. Cycles and chains that run past the page
// count are reported as Corrupt rather than looped forever.
func (p *pager) readOverflowChain(first uint32, need int) ([]byte, error) {
	out := make([]byte, 0, need)
	visited := make(map[uint32]bool)
	page := first

	for need > 0 {
		if page == 0 {
			return nil, newCorruptError("overflow chain ended before enough bytes were collected", nil)
		}
		if visited[page] {
			return nil, newCorruptError("cyclic overflow chain", nil)
		}
		if uint32(len(visited)) > p.pageCount {
			return nil, newCorruptError("overflow chain longer than the page count", nil)
		}
		visited[page] = true

		buf, err := p.page(page)
		if err != nil {
			return nil, err
		}
		if len(buf) < 4 {
			return nil, newCorruptError("overflow page too small for its link pointer", nil)
		}

		next := binary.BigEndian.Uint32(buf[:4])
		chunk := buf[4:]
		take := need
		if take > len(chunk) {
			take = len(chunk)
		}
		out = append(out, chunk[:take]...)
		need -= take
		page = next
	}

	return out, nil
}

// reassemblePayload turns a cell's in-page bytes (everything from the start
// of the payload to the end of the page) plus the declared total payload
// size into the full, contiguous payload, following the overflow chain when
// the payload doesn't fit locally.
func (p *pager) reassemblePayload(inPage []byte, declared uint64, kind pageKind) ([]byte, error) {
	local, overflow := splitPayload(declared, p.usableSize, kind)

	need := local
	if overflow > 0 {
		need += 4
	}
	if need > len(inPage) {
		return nil, newCorruptError("cell payload runs past the end of the page", nil)
	}

	if overflow == 0 {
		return inPage[:local], nil
	}

	firstOverflow := binary.BigEndian.Uint32(inPage[local : local+4])
	tail, err := p.readOverflowChain(firstOverflow, overflow)
	if err != nil {
		return nil, err
	}

	full := make([]byte, 0, local+len(tail))
	full = append(full, inPage[:local]...)
	full = append(full, tail...)
	return full, nil
}

// decodeRecord parses a record's header (varint serial types) and body
// (the payloads those serial types describe) out of a fully-reassembled
// payload.
func decodeRecord(payload []byte, enc textEncoding) ([]Value, error) {
	headerLen, n, err := readVarint(payload, 0)
	if err != nil {
		return nil, err
	}
	if int(headerLen) < n {
		return nil, newCorruptError("record header length shorter than its own varint", nil)
	}

	var serialTypes []uint64
	offset := n
	for offset < int(headerLen) {
		st, m, err := readVarint(payload, offset)
		if err != nil {
			return nil, err
		}
		serialTypes = append(serialTypes, st)
		offset += m
	}
	if offset != int(headerLen) {
		return nil, newCorruptError("record header serial types overran the declared header length", nil)
	}

	values := make([]Value, len(serialTypes))
	body := offset
	for i, st := range serialTypes {
		size := serialTypeSize(st)
		if body+size > len(payload) {
			return nil, newCorruptError("record body shorter than its serial types declare", nil)
		}
		v, err := decodeValue(st, payload[body:body+size], enc)
		if err != nil {
			return nil, err
		}
		values[i] = v
		body += size
	}
	if body != len(payload) {
		return nil, newCorruptError("record body size does not match payload size", nil)
	}

	return values, nil
}
