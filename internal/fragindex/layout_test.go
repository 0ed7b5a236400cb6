package fragindex

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func layoutOf(data []byte) Layout {
	return ProbeLayout(context.Background(), bytes.NewReader(data), int64(len(data)))
}

func TestProbeLayoutFragmented(t *testing.T) {
	data := threeFragmentFile()
	layout := layoutOf(data)
	assert.True(t, layout.HasFtyp)
	assert.True(t, layout.HasMoov)
	assert.True(t, layout.MoovBeforeMoof)
	assert.True(t, layout.IsFragmented())
	assert.False(t, layout.HasNativeIndex())
	assert.Equal(t, 3, layout.MoofCount)
	assert.Equal(t, 3, layout.MdatCount)
	assert.True(t, layout.Complete)
	assert.Equal(t, int64(len(data)), layout.HeaderSize+layout.DataSize)
}

func TestProbeLayoutNativeIndex(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(ftypBox())
	buf.Write(moovBox(1000, trakBox(90000, "vide")))
	sidxOffset := int64(buf.Len())
	sidx := box("sidx", make([]byte, 24))
	buf.Write(sidx)
	buf.Write(moofBox(trafBox(1, trunBox(10))))
	buf.Write(mdatBox(4))
	buf.Write(box("mfra", make([]byte, 8)))

	layout := layoutOf(buf.Bytes())
	assert.True(t, layout.HasSidx)
	assert.True(t, layout.HasMfra)
	assert.True(t, layout.HasNativeIndex())
	assert.Equal(t, sidxOffset, layout.SidxOffset)
	assert.Equal(t, int64(len(sidx)), layout.SidxSize)
}

func TestProbeLayoutMoovAtEnd(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(moofBox(trafBox(1, trunBox(10))))
	buf.Write(mdatBox(4))
	buf.Write(moovBox(1000, trakBox(90000, "vide")))

	layout := layoutOf(buf.Bytes())
	assert.True(t, layout.HasMoov)
	assert.False(t, layout.MoovBeforeMoof)
}

func TestProbeLayoutIncomplete(t *testing.T) {
	data := append(threeFragmentFile(), 0, 0, 0, 1, 'm', 'o', 'o', 'f')
	layout := layoutOf(data)
	assert.False(t, layout.Complete)
	assert.Equal(t, 3, layout.MoofCount)
}

func TestProbeLayoutStopsWhenCanceled(t *testing.T) {
	data := threeFragmentFile()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	layout := ProbeLayout(ctx, bytes.NewReader(data), int64(len(data)))
	assert.False(t, layout.Complete)
	assert.Zero(t, layout.MoofCount)
	assert.Zero(t, layout.HeaderSize+layout.DataSize)
}
