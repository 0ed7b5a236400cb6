package fragindex

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"time"
)

const (
	defaultMaxMoofSize        = int64(16 << 20)
	defaultMaxFragments       = 1_000_000
	DefaultFallbackDurationUs = int64(2_000_000)
)

type ScanOptions struct {
	// MaxFragments stops the scan once this many fragments were collected.
	MaxFragments int
	// MaxMoofSize bounds the bytes loaded for a single moof.
	MaxMoofSize int64
	// FallbackDurationUs is assigned to fragments whose duration resolves to
	// zero microseconds.
	FallbackDurationUs int64
	Logger             *slog.Logger
}

func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		MaxFragments:       defaultMaxFragments,
		MaxMoofSize:        defaultMaxMoofSize,
		FallbackDurationUs: DefaultFallbackDurationUs,
	}
}

func (o ScanOptions) normalize() ScanOptions {
	if o.MaxFragments <= 0 {
		o.MaxFragments = defaultMaxFragments
	}
	if o.MaxMoofSize <= 0 {
		o.MaxMoofSize = defaultMaxMoofSize
	}
	if o.FallbackDurationUs <= 0 {
		o.FallbackDurationUs = DefaultFallbackDurationUs
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type StopReason string

const (
	StopEOF          StopReason = "eof"
	StopCorruptBox   StopReason = "corrupt_box"
	StopMaxFragments StopReason = "max_fragments"
	StopCanceled     StopReason = "canceled"
)

type ScanStats struct {
	Fragments      int           `json:"fragments"`
	FallbackUsed   int           `json:"fallback_used"`
	OversizedMoofs int           `json:"oversized_moofs"`
	BytesWalked    int64         `json:"bytes_walked"`
	Stop           StopReason    `json:"stop"`
	Truncated      bool          `json:"truncated"`
	Elapsed        time.Duration `json:"elapsed"`
}

// ScanFragments walks every top level box and emits one Fragment per moof,
// using movie to decide which track fragment is authoritative. Fragments are
// timed on a running clock starting at zero.
func ScanFragments(ctx context.Context, r io.ReaderAt, size int64, movie MovieInfo, opts ScanOptions) ([]Fragment, ScanStats) {
	opts = opts.normalize()
	start := time.Now()
	timescale := movie.Timescale
	if timescale == 0 {
		timescale = defaultTimescale
	}

	var fragments []Fragment
	var stats ScanStats
	var clock int64
	stats.Stop = StopEOF

	var offset int64
	for offset+8 <= size {
		if err := ctx.Err(); err != nil {
			stats.Stop = StopCanceled
			stats.Truncated = true
			break
		}
		if len(fragments) >= opts.MaxFragments {
			stats.Stop = StopMaxFragments
			stats.Truncated = true
			break
		}
		boxSize, boxType, headerSize, ok := readBoxHeader(r, offset, size)
		if !ok {
			stats.Stop = StopCorruptBox
			opts.Logger.Debug("stopping fragment walk at unreadable box", slog.Int64("offset", offset))
			break
		}
		if boxType != boxMoof {
			offset += boxSize
			continue
		}

		var units uint64
		if boxSize-headerSize > opts.MaxMoofSize {
			stats.OversizedMoofs++
			opts.Logger.Warn("moof exceeds size limit, timing skipped",
				slog.Int64("offset", offset),
				slog.Int64("size", boxSize),
			)
		} else if buf, ok := readPayload(r, offset+headerSize, boxSize-headerSize); ok {
			units = moofDuration(buf, movie.VideoTrackID)
		}

		durationUs := UnitsToMicros(units, timescale)
		if durationUs == 0 {
			durationUs = opts.FallbackDurationUs
			stats.FallbackUsed++
		}

		fragmentSize := boxSize
		next := offset + boxSize
		if next+8 <= size {
			if mdatSize, mdatType, _, ok := readBoxHeader(r, next, size); ok && mdatType == boxMdat {
				fragmentSize += mdatSize
			}
		}

		fragments = append(fragments, Fragment{
			Position:   offset,
			Size:       fragmentSize,
			TimeUs:     clock,
			DurationUs: durationUs,
		})
		opts.Logger.Debug("fragment",
			slog.Int64("position", offset),
			slog.Int64("size", fragmentSize),
			slog.Int64("time_us", clock),
			slog.Int64("duration_us", durationUs),
		)
		clock = addSaturating(clock, durationUs)
		offset += boxSize
	}

	if offset > size {
		offset = size
	}
	stats.BytesWalked = offset
	stats.Fragments = len(fragments)
	stats.Elapsed = time.Since(start)
	return fragments, stats
}

// moofDuration returns the duration, in timescale units, of the track
// fragment that times this moof: the video track's when it has one, otherwise
// the first track fragment with a non-zero duration.
func moofDuration(buf []byte, videoTrackID uint32) uint64 {
	var first uint64
	var video uint64
	eachChild(buf, func(boxType string, payload []byte) bool {
		if boxType != boxTraf {
			return true
		}
		trackID, units := parseTraf(payload)
		if trackID == 0 || units == 0 {
			return true
		}
		if videoTrackID != 0 && trackID == videoTrackID && video == 0 {
			video = units
		}
		if first == 0 {
			first = units
		}
		return true
	})
	if video > 0 {
		return video
	}
	return first
}

// parseTraf returns the track id from tfhd and the summed durations of every
// trun in the track fragment.
func parseTraf(buf []byte) (uint32, uint64) {
	var trackID uint32
	var units uint64
	eachChild(buf, func(boxType string, payload []byte) bool {
		switch boxType {
		case boxTfhd:
			if len(payload) >= 8 {
				trackID = binary.BigEndian.Uint32(payload[4:8])
			}
		case boxTrun:
			if summary, ok := parseTrun(payload); ok {
				units += summary.Duration
			}
		}
		return true
	})
	return trackID, units
}

func addSaturating(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
