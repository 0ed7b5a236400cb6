package fragindex

import (
	"bytes"
	"context"
	"testing"
)

const fuzzParserMaxBytes = 1 << 20 // 1 MiB

func fuzzLimit(data []byte) []byte {
	if len(data) > fuzzParserMaxBytes {
		return data[:fuzzParserMaxBytes]
	}
	return data
}

func FuzzScanMovie(f *testing.F) {
	f.Add([]byte{})
	f.Add(moovBox(1000, trakBox(90000, "vide")))
	f.Add([]byte{0, 0, 0, 1, 'm', 'o', 'o', 'v', 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		data = fuzzLimit(data)
		_ = ScanMovie(bytes.NewReader(data), int64(len(data)), 0)
		_ = ProbeLayout(context.Background(), bytes.NewReader(data), int64(len(data)))
	})
}

func FuzzScanFragments(f *testing.F) {
	f.Add([]byte{}, uint32(0))
	f.Add(threeFragmentFile(), uint32(1))
	f.Add(moofBox(trafBox(1, trunBox(1, 2, 3))), uint32(1))

	f.Fuzz(func(t *testing.T, data []byte, videoTrackID uint32) {
		data = fuzzLimit(data)
		movie := MovieInfo{VideoTrackID: videoTrackID, Timescale: 1000}
		fragments, _ := ScanFragments(context.Background(), bytes.NewReader(data), int64(len(data)), movie, DefaultScanOptions())
		if err := NewIndex(fragments, 1000).Validate(); err != nil {
			t.Fatalf("scan produced invalid index: %v", err)
		}
	})
}

func FuzzParseTrun(f *testing.F) {
	f.Add([]byte{})
	f.Add(trunPayload(trunSampleDurationPresent|trunSampleSizePresent, 2, 1, 2, 3, 4))
	f.Add(trunPayload(0xFFFFFF, 0xFFFFFFFF))

	f.Fuzz(func(t *testing.T, data []byte) {
		data = fuzzLimit(data)
		summary, ok := parseTrun(data)
		if ok && summary.Samples > summary.SampleCount {
			t.Fatalf("parsed %d samples from a table of %d", summary.Samples, summary.SampleCount)
		}
	})
}
