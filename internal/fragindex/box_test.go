package fragindex

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBoxHeaderCompactSize(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "free", make([]byte, 12))
	data := buf.Bytes()

	size, typ, header, ok := readBoxHeader(bytes.NewReader(data), 0, int64(len(data)))
	require.True(t, ok)
	assert.Equal(t, int64(20), size)
	assert.Equal(t, "free", typ)
	assert.Equal(t, int64(8), header)
}

func TestReadBoxHeaderExtendedSize(t *testing.T) {
	var buf bytes.Buffer
	writeLargeBox(&buf, "mdat", make([]byte, 40))
	data := buf.Bytes()

	size, typ, header, ok := readBoxHeader(bytes.NewReader(data), 0, int64(len(data)))
	require.True(t, ok)
	assert.Equal(t, int64(56), size, "64-bit size must be used, not the 4-byte field")
	assert.Equal(t, "mdat", typ)
	assert.Equal(t, int64(16), header)
}

func TestReadBoxHeaderToEndOfFile(t *testing.T) {
	data := make([]byte, 8+100)
	copy(data[4:8], "mdat")
	size, _, _, ok := readBoxHeader(bytes.NewReader(data), 0, int64(len(data)))
	require.True(t, ok)
	assert.Equal(t, int64(108), size)
}

func TestReadBoxHeaderRejectsCorruptSizes(t *testing.T) {
	data := make([]byte, 16)
	binary.BigEndian.PutUint32(data[0:4], 4)
	copy(data[4:8], "moof")
	_, _, _, ok := readBoxHeader(bytes.NewReader(data), 0, int64(len(data)))
	assert.False(t, ok, "size below the header length")

	binary.BigEndian.PutUint32(data[0:4], 1)
	binary.BigEndian.PutUint64(data[8:16], 8)
	_, _, _, ok = readBoxHeader(bytes.NewReader(data), 0, int64(len(data)))
	assert.False(t, ok, "extended size below 16")

	_, _, _, ok = readBoxHeader(bytes.NewReader(data[:5]), 0, 5)
	assert.False(t, ok, "short header")
}

func TestReadBoxHeaderFromBuffer(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "mvhd", make([]byte, 4))
	writeLargeBox(&buf, "trak", make([]byte, 4))
	data := buf.Bytes()

	size, typ, header := readBoxHeaderFrom(data, 0)
	assert.Equal(t, int64(12), size)
	assert.Equal(t, "mvhd", typ)
	assert.Equal(t, int64(8), header)

	size, typ, header = readBoxHeaderFrom(data, 12)
	assert.Equal(t, int64(20), size)
	assert.Equal(t, "trak", typ)
	assert.Equal(t, int64(16), header)

	size, _, _ = readBoxHeaderFrom(data, int64(len(data))-4)
	assert.Zero(t, size)
}

func TestEachChildStopsAtMalformedHeader(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "aaaa", nil)
	buf.Write([]byte{0, 0, 0, 2, 'b', 'b', 'b', 'b'})
	writeBox(&buf, "cccc", nil)

	var seen []string
	eachChild(buf.Bytes(), func(boxType string, _ []byte) bool {
		seen = append(seen, boxType)
		return true
	})
	assert.Equal(t, []string{"aaaa"}, seen)
}

func TestSliceBoxClampsToBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	assert.Equal(t, []byte{3, 4}, sliceBox(buf, 2, 10))
	assert.Nil(t, sliceBox(buf, -1, 2))
	assert.Nil(t, sliceBox(buf, 6, 2))
}
