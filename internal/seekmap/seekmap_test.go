package seekmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

func sampleIndex() fragindex.Index {
	return fragindex.NewIndex([]fragindex.Fragment{
		{Position: 100, Size: 50, TimeUs: 0, DurationUs: 2_000_000},
		{Position: 150, Size: 60, TimeUs: 2_000_000, DurationUs: 2_000_000},
		{Position: 210, Size: 70, TimeUs: 4_000_000, DurationUs: 2_000_000},
	}, 90000)
}

func TestFromIndex(t *testing.T) {
	chunks, ok := FromIndex(sampleIndex())
	require.True(t, ok)
	assert.True(t, chunks.IsSeekable())
	assert.Equal(t, 3, chunks.Len())
	assert.Equal(t, int64(6_000_000), chunks.DurationUs())
	assert.Equal(t, []int64{100, 150, 210}, chunks.Offsets())
	assert.Equal(t, []int64{50, 60, 70}, chunks.Sizes())
	assert.Equal(t, []int64{0, 2_000_000, 4_000_000}, chunks.TimesUs())
	assert.Equal(t, []int64{2_000_000, 2_000_000, 2_000_000}, chunks.DurationsUs())

	_, ok = FromIndex(fragindex.EmptyIndex())
	assert.False(t, ok)
}

func TestNewChunkIndexValidation(t *testing.T) {
	_, err := NewChunkIndex([]int64{1}, []int64{1, 2}, []int64{1}, []int64{0})
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = NewChunkIndex(nil, nil, nil, nil)
	assert.True(t, errors.Is(err, ErrNotSeekable))
}

func TestChunkIndexSeekPoints(t *testing.T) {
	chunks, ok := FromIndex(sampleIndex())
	require.True(t, ok)

	tests := []struct {
		name   string
		timeUs int64
		first  SeekPoint
		second SeekPoint
	}{
		{"before start", -10, SeekPoint{0, 100}, SeekPoint{0, 100}},
		{"exact chunk start", 2_000_000, SeekPoint{2_000_000, 150}, SeekPoint{2_000_000, 150}},
		{"inside chunk", 1_000_000, SeekPoint{0, 100}, SeekPoint{2_000_000, 150}},
		{"inside last chunk", 5_000_000, SeekPoint{4_000_000, 210}, SeekPoint{4_000_000, 210}},
		{"past the end", 90_000_000, SeekPoint{4_000_000, 210}, SeekPoint{4_000_000, 210}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := chunks.SeekPoints(tt.timeUs)
			assert.Equal(t, tt.first, points.First)
			assert.Equal(t, tt.second, points.Second)
		})
	}
}

func TestChunkIndexMatchesIndexSeekPosition(t *testing.T) {
	idx := sampleIndex()
	chunks, _ := FromIndex(idx)
	for _, ts := range []int64{-1, 0, 1, 1_999_999, 2_000_000, 4_500_000, 10_000_000} {
		assert.Equal(t, idx.SeekPosition(ts), chunks.SeekPoints(ts).First.Position, "time %d", ts)
		assert.Equal(t, idx.FragmentIndex(ts), chunks.ChunkIndex(ts), "time %d", ts)
	}
}

func TestUnseekable(t *testing.T) {
	u := NewUnseekable(DurationUnknown)
	assert.False(t, u.IsSeekable())
	assert.Equal(t, DurationUnknown, u.DurationUs())
	assert.Equal(t, NewSeekPoints(SeekPoint{}), u.SeekPoints(5_000_000))
}
