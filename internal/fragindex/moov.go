package fragindex

import (
	"encoding/binary"
	"io"
)

const (
	defaultMaxMoovSize = int64(16 << 20)
	defaultTimescale   = uint32(1000)
)

// Track is one trak of the movie header. ID is the 1-based position of the
// trak inside moov, which is what tfhd refers to in the files this package
// targets.
type Track struct {
	ID        uint32 `json:"id"`
	Timescale uint32 `json:"timescale"`
	Handler   string `json:"handler"`
	IsVideo   bool   `json:"is_video"`
}

// MovieInfo is the result of the movie header pass. Timescale is always
// non-zero: video track, then first track, then mvhd, then 1000.
type MovieInfo struct {
	Found          bool    `json:"found"`
	MovieTimescale uint32  `json:"movie_timescale"`
	Tracks         []Track `json:"tracks"`
	VideoTrackID   uint32  `json:"video_track_id"`
	Timescale      uint32  `json:"timescale"`
}

func (m MovieInfo) Track(id uint32) (Track, bool) {
	for _, track := range m.Tracks {
		if track.ID == id {
			return track, true
		}
	}
	return Track{}, false
}

// ScanMovie walks the top level boxes until the first moov and reads the
// movie and track timescales from it. A missing or unreadable moov yields a
// MovieInfo with the default timescale.
func ScanMovie(r io.ReaderAt, size int64, maxMoovSize int64) MovieInfo {
	if maxMoovSize <= 0 {
		maxMoovSize = defaultMaxMoovSize
	}
	var offset int64
	for offset+8 <= size {
		boxSize, boxType, headerSize, ok := readBoxHeader(r, offset, size)
		if !ok {
			break
		}
		if boxType == boxMoov {
			moovSize := boxSize - headerSize
			if moovSize > maxMoovSize {
				break
			}
			buf, ok := readPayload(r, offset+headerSize, moovSize)
			if !ok {
				break
			}
			return parseMoov(buf)
		}
		offset += boxSize
	}
	return resolveMovie(MovieInfo{})
}

func parseMoov(buf []byte) MovieInfo {
	info := MovieInfo{Found: true}
	var ordinal uint32
	eachChild(buf, func(boxType string, payload []byte) bool {
		switch boxType {
		case boxMvhd:
			if timescale, ok := parseHeaderTimescale(payload); ok {
				info.MovieTimescale = timescale
			}
		case boxTrak:
			ordinal++
			track := parseTrak(payload)
			if track.Timescale == 0 {
				return true
			}
			track.ID = ordinal
			info.Tracks = append(info.Tracks, track)
		}
		return true
	})
	return resolveMovie(info)
}

func resolveMovie(info MovieInfo) MovieInfo {
	for _, track := range info.Tracks {
		if track.IsVideo {
			info.VideoTrackID = track.ID
			info.Timescale = track.Timescale
			return info
		}
	}
	switch {
	case len(info.Tracks) > 0:
		info.Timescale = info.Tracks[0].Timescale
	case info.MovieTimescale > 0:
		info.Timescale = info.MovieTimescale
	default:
		info.Timescale = defaultTimescale
	}
	return info
}

func parseTrak(buf []byte) Track {
	var track Track
	eachChild(buf, func(boxType string, payload []byte) bool {
		if boxType != boxMdia {
			return true
		}
		track = parseMdia(payload)
		return false
	})
	return track
}

func parseMdia(buf []byte) Track {
	var track Track
	eachChild(buf, func(boxType string, payload []byte) bool {
		switch boxType {
		case boxMdhd:
			if timescale, ok := parseHeaderTimescale(payload); ok {
				track.Timescale = timescale
			}
		case boxHdlr:
			if handler, ok := parseHdlr(payload); ok {
				track.Handler = handler
				track.IsVideo = handler == handlerVideo
			}
		}
		return true
	})
	return track
}

// parseHeaderTimescale reads the timescale of an mvhd or mdhd payload. Both
// boxes share the same prefix layout.
func parseHeaderTimescale(payload []byte) (uint32, bool) {
	if len(payload) < 1 {
		return 0, false
	}
	switch payload[0] {
	case 0:
		if len(payload) < 16 {
			return 0, false
		}
		return binary.BigEndian.Uint32(payload[12:16]), true
	case 1:
		if len(payload) < 24 {
			return 0, false
		}
		return binary.BigEndian.Uint32(payload[20:24]), true
	}
	return 0, false
}

func parseHdlr(payload []byte) (string, bool) {
	if len(payload) < 12 {
		return "", false
	}
	return string(payload[8:12]), true
}
