package seekmap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

func TestBuildSidxReferences(t *testing.T) {
	sidx, err := BuildSidx(sampleIndex(), SidxOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), sidx.ReferenceID)
	assert.Equal(t, uint32(90000), sidx.Timescale)
	require.Len(t, sidx.SidxRefs, 3)
	assert.Equal(t, uint32(50), sidx.SidxRefs[0].ReferencedSize)
	assert.Equal(t, uint32(60), sidx.SidxRefs[1].ReferencedSize)
	assert.Equal(t, uint32(70), sidx.SidxRefs[2].ReferencedSize)
	for _, ref := range sidx.SidxRefs {
		assert.Equal(t, uint32(180000), ref.SubSegmentDuration)
	}
}

func TestBuildSidxSpansGapsBetweenFragments(t *testing.T) {
	idx := fragindex.NewIndex([]fragindex.Fragment{
		{Position: 0, Size: 10, TimeUs: 0, DurationUs: 1_000_000},
		{Position: 40, Size: 10, TimeUs: 1_000_000, DurationUs: 1_000_000},
	}, 1000)
	sidx, err := BuildSidx(idx, SidxOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(40), sidx.SidxRefs[0].ReferencedSize)
	assert.Equal(t, uint32(1000), sidx.SidxRefs[0].SubSegmentDuration)
}

func TestBuildSidxErrors(t *testing.T) {
	_, err := BuildSidx(fragindex.EmptyIndex(), SidxOptions{})
	assert.True(t, errors.Is(err, ErrNotSeekable))

	huge := fragindex.NewIndex([]fragindex.Fragment{
		{Position: 0, Size: 1 << 32, TimeUs: 0, DurationUs: 1},
	}, 1000)
	_, err = BuildSidx(huge, SidxOptions{})
	assert.True(t, errors.Is(err, ErrSidxOverflow))
}

func TestEncodeDecodeSidx(t *testing.T) {
	idx := sampleIndex()
	sidx, err := BuildSidx(idx, SidxOptions{})
	require.NoError(t, err)
	boxSize := int64(sidx.Size())

	var buf bytes.Buffer
	require.NoError(t, EncodeSidx(&buf, idx, SidxOptions{FirstOffset: uint64(100 - boxSize)}))
	require.Equal(t, boxSize, int64(buf.Len()))

	box, err := mp4.DecodeBox(0, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, ok := box.(*mp4.SidxBox)
	require.True(t, ok)

	chunks, err := DecodeSidx(bytes.NewReader(buf.Bytes()), 0, boxSize)
	require.NoError(t, err)
	assert.Equal(t, idx.Offsets(), chunks.Offsets())
	assert.Equal(t, idx.Sizes(), chunks.Sizes())
	assert.Equal(t, idx.TimesUs(), chunks.TimesUs())
	assert.Equal(t, idx.DurationsUs(), chunks.DurationsUs())
}

func TestDecodeSidxRejectsOtherBoxes(t *testing.T) {
	data := []byte{0, 0, 0, 8, 'f', 'r', 'e', 'e'}
	_, err := DecodeSidx(bytes.NewReader(data), 0, int64(len(data)))
	require.Error(t, err)

	_, err = DecodeSidx(bytes.NewReader(data), 0, 0)
	require.Error(t, err)
}

func TestNativeSeekMap(t *testing.T) {
	idx := sampleIndex()
	var buf bytes.Buffer
	require.NoError(t, EncodeSidx(&buf, idx, SidxOptions{}))
	data := buf.Bytes()

	layout := fragindex.Layout{HasSidx: true, SidxOffset: 0, SidxSize: int64(len(data))}
	native := Native(bytes.NewReader(data), layout)
	require.True(t, native.IsSeekable())
	assert.Equal(t, idx.DurationUs(), native.DurationUs())

	plain := Native(bytes.NewReader(data), fragindex.Layout{})
	assert.False(t, plain.IsSeekable())
	assert.Equal(t, DurationUnknown, plain.DurationUs())
}

func TestMicrosUnitsConversion(t *testing.T) {
	assert.Equal(t, uint64(180000), microsToUnits(2_000_000, 90000))
	assert.Equal(t, uint64(0), microsToUnits(-5, 90000))
	assert.Equal(t, int64(2_000_000), fragindex.UnitsToMicros(180000, 90000))
}
