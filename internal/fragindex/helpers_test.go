package fragindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeBox(buf *bytes.Buffer, boxType string, payload []byte) {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(8+len(payload)))
	copy(header[4:8], boxType)
	buf.Write(header[:])
	buf.Write(payload)
}

func writeLargeBox(buf *bytes.Buffer, boxType string, payload []byte) {
	var header [16]byte
	binary.BigEndian.PutUint32(header[0:4], 1)
	copy(header[4:8], boxType)
	binary.BigEndian.PutUint64(header[8:16], uint64(16+len(payload)))
	buf.Write(header[:])
	buf.Write(payload)
}

func box(boxType string, children ...[]byte) []byte {
	var buf bytes.Buffer
	writeBox(&buf, boxType, bytes.Join(children, nil))
	return buf.Bytes()
}

func u32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// headerPayload builds an mvhd/mdhd payload with the timescale at the
// version-specific offset.
func headerPayload(version byte, timescale uint32) []byte {
	if version == 1 {
		payload := make([]byte, 32)
		payload[0] = 1
		binary.BigEndian.PutUint32(payload[20:24], timescale)
		return payload
	}
	payload := make([]byte, 20)
	binary.BigEndian.PutUint32(payload[12:16], timescale)
	return payload
}

func hdlrPayload(handler string) []byte {
	payload := make([]byte, 24)
	copy(payload[8:12], handler)
	return payload
}

func trakBox(timescale uint32, handler string) []byte {
	return box("trak",
		box("tkhd", make([]byte, 84)),
		box("mdia",
			box("mdhd", headerPayload(0, timescale)),
			box("hdlr", hdlrPayload(handler)),
		),
	)
}

func moovBox(movieTimescale uint32, traks ...[]byte) []byte {
	children := append([][]byte{box("mvhd", headerPayload(0, movieTimescale))}, traks...)
	return box("moov", children...)
}

func tfhdBox(trackID uint32) []byte {
	return box("tfhd", append(u32(0x020000), u32(trackID)...))
}

// trunBox writes a run with data offset and per-sample durations and sizes.
func trunBox(durations ...uint32) []byte {
	payload := append(u32(trunDataOffsetPresent|trunSampleDurationPresent|trunSampleSizePresent), u32(uint32(len(durations)))...)
	payload = append(payload, u32(0)...)
	for _, d := range durations {
		payload = append(payload, u32(d)...)
		payload = append(payload, u32(100)...)
	}
	return box("trun", payload)
}

// trunNoDurations writes a run that only carries sample sizes.
func trunNoDurations(samples int) []byte {
	payload := append(u32(trunSampleSizePresent), u32(uint32(samples))...)
	for i := 0; i < samples; i++ {
		payload = append(payload, u32(100)...)
	}
	return box("trun", payload)
}

func trafBox(trackID uint32, truns ...[]byte) []byte {
	children := append([][]byte{tfhdBox(trackID)}, truns...)
	return box("traf", children...)
}

func moofBox(trafs ...[]byte) []byte {
	children := append([][]byte{box("mfhd", make([]byte, 8))}, trafs...)
	return box("moof", children...)
}

func mdatBox(n int) []byte {
	return box("mdat", make([]byte, n))
}

func ftypBox() []byte {
	return box("ftyp", []byte("iso6\x00\x00\x00\x00iso6dash"))
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// threeFragmentFile is a single video track at 90 kHz with three two second
// fragments, each followed by a 1000 byte mdat.
func threeFragmentFile() []byte {
	var buf bytes.Buffer
	buf.Write(ftypBox())
	buf.Write(moovBox(1000, trakBox(90000, "vide")))
	for i := 0; i < 3; i++ {
		buf.Write(moofBox(trafBox(1, trunBox(90000, 90000))))
		buf.Write(mdatBox(1000))
	}
	return buf.Bytes()
}

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
