// Package testutil builds small fragmented MP4 files for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
	"time"
)

// FragmentTimescale is the media timescale of files built by FragmentedFile.
const FragmentTimescale = 1000

// FragmentMdatPayload is the payload length of every mdat FragmentedFile writes.
const FragmentMdatPayload = 32

// Box returns a complete box with a 32-bit size header.
func Box(boxType string, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(body)))
	copy(out[4:8], boxType)
	return append(out, body...)
}

// MovieBox returns a moov with one video track at FragmentTimescale.
func MovieBox() []byte {
	mdhd := make([]byte, 20)
	binary.BigEndian.PutUint32(mdhd[12:16], FragmentTimescale)
	hdlr := make([]byte, 24)
	copy(hdlr[8:12], "vide")
	return Box("moov", Box("trak", Box("mdia", Box("mdhd", mdhd), Box("hdlr", hdlr))))
}

// FragmentBox returns a moof for track 1 whose single sample lasts durationUnits.
func FragmentBox(durationUnits uint32) []byte {
	tfhd := make([]byte, 8)
	binary.BigEndian.PutUint32(tfhd[4:8], 1)
	trun := make([]byte, 12)
	binary.BigEndian.PutUint32(trun[0:4], 0x000100)
	binary.BigEndian.PutUint32(trun[4:8], 1)
	binary.BigEndian.PutUint32(trun[8:12], durationUnits)
	return Box("moof", Box("traf", Box("tfhd", tfhd), Box("trun", trun)))
}

// FragmentedFile returns a moov followed by n one second moof+mdat pairs.
func FragmentedFile(n int) []byte {
	var buf bytes.Buffer
	buf.Write(MovieBox())
	for i := 0; i < n; i++ {
		buf.Write(FragmentBox(FragmentTimescale))
		buf.Write(Box("mdat", make([]byte, FragmentMdatPayload)))
	}
	return buf.Bytes()
}

// FragmentSize is the byte length of one moof+mdat pair from FragmentedFile.
func FragmentSize() int64 {
	return int64(len(FragmentBox(FragmentTimescale)) + 8 + FragmentMdatPayload)
}

// WriteFile writes data to path and pins its modification time.
func WriteFile(t testing.TB, path string, data []byte, modTime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("setting times on %s: %v", path, err)
	}
}

// ReadFile returns the contents of path or fails the test.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}
