package fragindex

import (
	"encoding/binary"
	"io"
)

const (
	boxMoov = "moov"
	boxMvhd = "mvhd"
	boxTrak = "trak"
	boxMdia = "mdia"
	boxMdhd = "mdhd"
	boxHdlr = "hdlr"
	boxMoof = "moof"
	boxTraf = "traf"
	boxTfhd = "tfhd"
	boxTrun = "trun"
	boxMdat = "mdat"
	boxSidx = "sidx"
	boxMfra = "mfra"
	boxFtyp = "ftyp"

	handlerVideo = "vide"
)

// readBoxHeader reads the box header at offset. A size field of 0 extends the
// box to the end of the file and 1 selects the 64-bit size that follows the
// type. ok is false when the header cannot be read or the size is smaller than
// the header itself; callers treat that as the end of the walk.
func readBoxHeader(r io.ReaderAt, offset, fileSize int64) (boxSize int64, boxType string, headerSize int64, ok bool) {
	var header [16]byte
	if _, err := r.ReadAt(header[:8], offset); err != nil {
		return 0, "", 0, false
	}

	size32 := binary.BigEndian.Uint32(header[0:4])
	boxType = string(header[4:8])
	switch size32 {
	case 0:
		remaining := fileSize - offset
		if remaining < 8 {
			return 0, "", 0, false
		}
		return remaining, boxType, 8, true
	case 1:
		if _, err := r.ReadAt(header[8:16], offset+8); err != nil {
			return 0, "", 0, false
		}
		size64 := binary.BigEndian.Uint64(header[8:16])
		if size64 < 16 || size64 > uint64(maxBoxSize) {
			return 0, "", 0, false
		}
		return int64(size64), boxType, 16, true
	}
	if size32 < 8 {
		return 0, "", 0, false
	}
	return int64(size32), boxType, 8, true
}

const maxBoxSize = int64(1) << 60

func readBoxHeaderFrom(buf []byte, offset int64) (boxSize int64, boxType string, headerSize int64) {
	if offset < 0 || offset+8 > int64(len(buf)) {
		return 0, "", 0
	}
	size32 := binary.BigEndian.Uint32(buf[offset : offset+4])
	boxType = string(buf[offset+4 : offset+8])
	switch size32 {
	case 0:
		return int64(len(buf)) - offset, boxType, 8
	case 1:
		if offset+16 > int64(len(buf)) {
			return 0, "", 0
		}
		size64 := binary.BigEndian.Uint64(buf[offset+8 : offset+16])
		if size64 < 16 || size64 > uint64(maxBoxSize) {
			return 0, "", 0
		}
		return int64(size64), boxType, 16
	}
	if size32 < 8 {
		return 0, "", 0
	}
	return int64(size32), boxType, 8
}

func sliceBox(buf []byte, offset, length int64) []byte {
	if offset < 0 || length < 0 {
		return nil
	}
	end := offset + length
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	if offset > end {
		return nil
	}
	return buf[offset:end]
}

// eachChild calls fn for every child box inside buf until fn returns false or
// a malformed header is reached.
func eachChild(buf []byte, fn func(boxType string, payload []byte) bool) {
	var offset int64
	for offset+8 <= int64(len(buf)) {
		boxSize, boxType, headerSize := readBoxHeaderFrom(buf, offset)
		if boxSize <= 0 {
			return
		}
		payload := sliceBox(buf, offset+headerSize, boxSize-headerSize)
		if !fn(boxType, payload) {
			return
		}
		offset += boxSize
	}
}

func readPayload(r io.ReaderAt, offset, length int64) ([]byte, bool) {
	if length < 0 {
		return nil, false
	}
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, false
	}
	return buf[:n], true
}
