package fragindex

import (
	"encoding/binary"
	"math"
)

const (
	trunDataOffsetPresent       = 0x000001
	trunFirstSampleFlagsPresent = 0x000004
	trunSampleDurationPresent   = 0x000100
	trunSampleSizePresent       = 0x000200
	trunSampleFlagsPresent      = 0x000400
	trunSampleCTOPresent        = 0x000800
)

// trunSummary is the part of a track fragment run this package needs.
// HasDurations is false when the run carries no per-sample durations, in which
// case Duration is always zero.
type trunSummary struct {
	SampleCount  uint32
	Samples      uint32
	Duration     uint64
	HasDurations bool
}

// parseTrun sums the per-sample durations of a trun payload. A table that is
// cut short sums the complete samples that are present.
func parseTrun(payload []byte) (trunSummary, bool) {
	if len(payload) < 8 {
		return trunSummary{}, false
	}
	flags := binary.BigEndian.Uint32(payload[0:4]) & 0x00FFFFFF
	summary := trunSummary{
		SampleCount:  binary.BigEndian.Uint32(payload[4:8]),
		HasDurations: flags&trunSampleDurationPresent != 0,
	}
	offset := 8
	if flags&trunDataOffsetPresent != 0 {
		offset += 4
	}
	if flags&trunFirstSampleFlagsPresent != 0 {
		offset += 4
	}

	stride := 0
	for _, bit := range []uint32{trunSampleDurationPresent, trunSampleSizePresent, trunSampleFlagsPresent, trunSampleCTOPresent} {
		if flags&bit != 0 {
			stride += 4
		}
	}
	if stride == 0 {
		summary.Samples = summary.SampleCount
		return summary, true
	}

	for i := uint32(0); i < summary.SampleCount; i++ {
		if offset+stride > len(payload) {
			break
		}
		if summary.HasDurations {
			summary.Duration += uint64(binary.BigEndian.Uint32(payload[offset : offset+4]))
		}
		summary.Samples++
		offset += stride
	}
	return summary, true
}

// UnitsToMicros converts a duration in timescale units to microseconds
// without overflowing for large unit counts.
func UnitsToMicros(units uint64, timescale uint32) int64 {
	if timescale == 0 {
		return 0
	}
	ts := uint64(timescale)
	whole := units / ts
	rem := units % ts
	if whole >= math.MaxInt64/1_000_000 {
		return math.MaxInt64
	}
	return int64(whole*1_000_000 + rem*1_000_000/ts)
}
