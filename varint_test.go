package sqlitefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVarint(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		offset       int
		expectedVal  uint64
		expectedRead int
	}{
		{"single byte zero", []byte{0x00}, 0, 0, 1},
		{"single byte max", []byte{0x7f}, 0, 0x7f, 1},
		{"two bytes", []byte{0x81, 0x00}, 0, 0x80, 2},
		{"two bytes with offset", []byte{0xff, 0x81, 0x00}, 1, 0x80, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, n, err := readVarint(tt.data, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedVal, val)
			assert.Equal(t, tt.expectedRead, n)
		})
	}
}

func TestReadVarintNineByteForm(t *testing.T) {
	data := make([]byte, 9)
	for i := 0; i < 8; i++ {
		data[i] = 0xff
	}
	data[8] = 0x2a

	val, n, err := readVarint(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, uint64(0x2a), val&0xff)
}

func TestReadVarintTruncated(t *testing.T) {
	_, _, err := readVarint([]byte{0x81}, 0)
	require.Error(t, err)
	assert.IsType(t, &CorruptError{}, err)
}
