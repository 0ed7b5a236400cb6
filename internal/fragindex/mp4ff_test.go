package fragindex

import (
	"bytes"
	"context"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFragmentedFile writes an init segment with a single track followed
// by the requested number of fragments. It returns the file and the offset of
// every moof.
func encodeFragmentedFile(t *testing.T, mediaType string, timescale uint32, samplesPerFragment int, sampleDur uint32, fragments int) ([]byte, []int64) {
	t.Helper()
	initSeg := mp4.CreateEmptyInit()
	initSeg.AddEmptyTrack(timescale, mediaType, "und")

	var buf bytes.Buffer
	require.NoError(t, initSeg.Encode(&buf))

	var positions []int64
	decodeTime := uint64(0)
	for i := 0; i < fragments; i++ {
		positions = append(positions, int64(buf.Len()))
		frag, err := mp4.CreateFragment(uint32(i+1), 1)
		require.NoError(t, err)
		for s := 0; s < samplesPerFragment; s++ {
			frag.AddFullSample(mp4.FullSample{
				Data:       []byte{0, 1, 2, 3},
				DecodeTime: decodeTime,
				Sample: mp4.Sample{
					Flags: mp4.SyncSampleFlags,
					Dur:   sampleDur,
					Size:  4,
				},
			})
			decodeTime += uint64(sampleDur)
		}
		require.NoError(t, frag.Encode(&buf))
	}
	return buf.Bytes(), positions
}

func TestBuildMp4ffVideoFragments(t *testing.T) {
	data, positions := encodeFragmentedFile(t, "video", 90000, 60, 3000, 4)

	result := NewBuilder(DefaultOptions(), nil).Build(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.Equal(t, 4, result.Index.Len())
	assert.Equal(t, uint32(1), result.Movie.VideoTrackID)
	assert.Equal(t, uint32(90000), result.Index.Timescale())
	assert.Equal(t, positions, result.Index.Offsets())
	assert.Equal(t, []int64{0, 2_000_000, 4_000_000, 6_000_000}, result.Index.TimesUs())
	assert.Equal(t, int64(8_000_000), result.Index.DurationUs())
	assert.Zero(t, result.Stats.FallbackUsed)

	sizes := result.Index.Sizes()
	for i := 0; i < len(positions)-1; i++ {
		assert.Equal(t, positions[i+1]-positions[i], sizes[i])
	}
	assert.Equal(t, int64(len(data))-positions[3], sizes[3])
}

func TestProbeLayoutMp4ffInit(t *testing.T) {
	data, _ := encodeFragmentedFile(t, "video", 12800, 25, 512, 2)
	layout := ProbeLayout(context.Background(), bytes.NewReader(data), int64(len(data)))
	assert.True(t, layout.HasFtyp)
	assert.True(t, layout.MoovBeforeMoof)
	assert.Equal(t, 2, layout.MoofCount)
	assert.False(t, layout.HasNativeIndex())
}
