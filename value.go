package sqlitefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// ValueKind is the tag of the Value sum type.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is a SQLite-typed column value. Exactly one of the payload fields is
// meaningful, selected by Kind.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	raw  []byte // Text: UTF-8 bytes; Blob: raw bytes
}

// NullValue returns the NULL value.
func NullValue() Value { return Value{kind: KindNull} }

// IntegerValue wraps a signed 64-bit integer.
func IntegerValue(i int64) Value { return Value{kind: KindInteger, i: i} }

// RealValue wraps a float64.
func RealValue(f float64) Value { return Value{kind: KindReal, f: f} }

// TextValue wraps UTF-8 text.
func TextValue(s string) Value { return Value{kind: KindText, raw: []byte(s)} }

// BlobValue wraps raw bytes.
func BlobValue(b []byte) Value { return Value{kind: KindBlob, raw: b} }

// Kind reports the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload and whether v is KindInteger.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

// Float64 returns the real payload and whether v is KindReal.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindReal {
		return 0, false
	}
	return v.f, true
}

// Text returns the text payload and whether v is KindText.
func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return string(v.raw), true
}

// Blob returns the blob payload and whether v is KindBlob.
func (v Value) Blob() ([]byte, bool) {
	if v.kind != KindBlob {
		return nil, false
	}
	return v.raw, true
}

// String renders v for diagnostics; it is not a serialization format.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindReal:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return string(v.raw)
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.raw)
	default:
		return "?"
	}
}

func typeRank(k ValueKind) int {
	switch k {
	case KindNull:
		return 0
	case KindInteger, KindReal:
		return 1
	case KindText:
		return 2
	case KindBlob:
		return 3
	default:
		return 4
	}
}

// asFloat64 gives the numeric value of an Integer or Real as a float64, for
// cross-type comparison. Very large int64 magnitudes lose precision in the
// conversion; SQLite has the same limitation when comparing INTEGER to REAL.
func (v Value) asFloat64() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// compareNumericNaN orders two float64s with NaN treated as greater than
// every finite value and equal to itself, so sorts involving NaN terminate.
func compareNumericNaN(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare orders two Values per the §3 total order: Null < Integer/Real <
// Text < Blob, numeric comparison within the Integer/Real rank, lexical
// byte comparison within Text and Blob.
func Compare(a, b Value) int {
	ra, rb := typeRank(a.kind), typeRank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		if a.kind == KindInteger && b.kind == KindInteger {
			switch {
			case a.i < b.i:
				return -1
			case a.i > b.i:
				return 1
			default:
				return 0
			}
		}
		return compareNumericNaN(a.asFloat64(), b.asFloat64())
	case 2, 3:
		return bytes.Compare(a.raw, b.raw)
	default:
		return 0
	}
}

// ValuesEqual reports whether a and b are equal under Compare's ordering.
func ValuesEqual(a, b Value) bool { return Compare(a, b) == 0 }

// serialTypeSize returns the number of payload bytes a serial type occupies,
// per the fixed table in §4.2.
func serialTypeSize(serialType uint64) int {
	switch serialType {
	case 0, 8, 9:
		return 0
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	case 4:
		return 4
	case 5:
		return 6
	case 6, 7:
		return 8
	default:
		if serialType >= 12 && serialType%2 == 0 {
			return int((serialType - 12) / 2)
		}
		if serialType >= 13 && serialType%2 == 1 {
			return int((serialType - 13) / 2)
		}
		return 0
	}
}

// decodeValue turns a serial-type code plus its raw payload bytes into a
// Value. text is decoded according to the database's declared encoding;
// UTF-16 databases are transcoded to UTF-8 rather than surfaced as raw
// bytes, per the Open Question resolved in SPEC_FULL.md §9.
func decodeValue(serialType uint64, data []byte, enc textEncoding) (Value, error) {
	switch serialType {
	case 0:
		return NullValue(), nil
	case 1:
		return IntegerValue(int64(int8(data[0]))), nil
	case 2:
		return IntegerValue(int64(int16(binary.BigEndian.Uint16(data)))), nil
	case 3:
		return IntegerValue(signExtend(uint64(data[0])<<16|uint64(data[1])<<8|uint64(data[2]), 24)), nil
	case 4:
		return IntegerValue(int64(int32(binary.BigEndian.Uint32(data)))), nil
	case 5:
		v := uint64(0)
		for _, b := range data[:6] {
			v = v<<8 | uint64(b)
		}
		return IntegerValue(signExtend(v, 48)), nil
	case 6:
		return IntegerValue(int64(binary.BigEndian.Uint64(data))), nil
	case 7:
		return RealValue(math.Float64frombits(binary.BigEndian.Uint64(data))), nil
	case 8:
		return IntegerValue(0), nil
	case 9:
		return IntegerValue(1), nil
	default:
		if serialType >= 12 && serialType%2 == 0 {
			return BlobValue(data), nil
		}
		if serialType >= 13 && serialType%2 == 1 {
			s, err := decodeText(data, enc)
			if err != nil {
				return Value{}, err
			}
			return TextValue(s), nil
		}
		return Value{}, newCorruptErrorf(nil, "unrecognized serial type %d", serialType)
	}
}

// signExtend sign-extends the low `bits` bits of v to a full int64.
func signExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func decodeText(data []byte, enc textEncoding) (string, error) {
	switch enc {
	case 0, encodingUTF8:
		return string(data), nil
	case encodingUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", newCorruptError("invalid UTF-16LE text payload", err)
		}
		return string(out), nil
	case encodingUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", newCorruptError("invalid UTF-16BE text payload", err)
		}
		return string(out), nil
	default:
		return "", newFormatError("unrecognized text encoding", nil)
	}
}
