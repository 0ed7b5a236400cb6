package seekmap

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/testutil"
)

func TestInterceptorReplacesUnseekableMap(t *testing.T) {
	chunks, ok := FromIndex(sampleIndex())
	require.True(t, ok)

	rec := &Recorder{}
	interceptor := NewInterceptor(rec, chunks, nil)
	interceptor.SeekMap(NewUnseekable(DurationUnknown))
	interceptor.EndTracks()

	assert.True(t, interceptor.Replaced())
	assert.Same(t, chunks, rec.Last())
	assert.True(t, rec.Ended())
}

func TestInterceptorKeepsSeekableMap(t *testing.T) {
	replacement, _ := FromIndex(sampleIndex())
	native, err := NewChunkIndex([]int64{10}, []int64{0}, []int64{1}, []int64{0})
	require.NoError(t, err)

	rec := &Recorder{}
	interceptor := NewInterceptor(rec, replacement, nil)
	interceptor.SeekMap(native)

	assert.False(t, interceptor.Replaced())
	assert.Same(t, native, rec.Last())
}

func TestInterceptorPassesThroughWithoutReplacement(t *testing.T) {
	rec := &Recorder{}
	interceptor := NewInterceptor(rec, nil, nil)
	native := NewUnseekable(3_000_000)
	interceptor.SeekMap(native)

	assert.False(t, interceptor.Replaced())
	assert.Equal(t, native, rec.Last())
}

func TestResolve(t *testing.T) {
	replacement, _ := FromIndex(sampleIndex())
	assert.Same(t, replacement, Resolve(nil, replacement))
	assert.Same(t, replacement, Resolve(NewUnseekable(DurationUnknown), replacement))
	assert.Equal(t, NewUnseekable(5), Resolve(NewUnseekable(5), nil))

	native, _ := NewChunkIndex([]int64{10}, []int64{0}, []int64{1}, []int64{0})
	assert.Same(t, native, Resolve(native, replacement))
}

func TestAttach(t *testing.T) {
	data := testutil.FragmentedFile(3)
	idx := fragindex.NewBuilder(fragindex.DefaultOptions(), nil).Build(context.Background(), bytes.NewReader(data), int64(len(data))).Index
	require.Equal(t, 3, idx.Len())

	m, replaced := Attach(context.Background(), bytes.NewReader(data), int64(len(data)), idx, nil)
	assert.True(t, replaced)
	assert.True(t, m.IsSeekable())
	assert.Equal(t, int64(3_000_000), m.DurationUs())

	m, replaced = Attach(context.Background(), bytes.NewReader(data), int64(len(data)), fragindex.EmptyIndex(), nil)
	assert.False(t, replaced)
	assert.False(t, m.IsSeekable())

	var withSidx bytes.Buffer
	require.NoError(t, EncodeSidx(&withSidx, idx, SidxOptions{}))
	withSidx.Write(data)
	native := withSidx.Bytes()
	m, replaced = Attach(context.Background(), bytes.NewReader(native), int64(len(native)), idx, nil)
	assert.False(t, replaced)
	assert.True(t, m.IsSeekable())
}

func TestAttachCanceled(t *testing.T) {
	data := testutil.FragmentedFile(2)
	idx := fragindex.NewBuilder(fragindex.DefaultOptions(), nil).Build(context.Background(), bytes.NewReader(data), int64(len(data))).Index

	var withSidx bytes.Buffer
	require.NoError(t, EncodeSidx(&withSidx, idx, SidxOptions{}))
	withSidx.Write(data)
	native := withSidx.Bytes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, replaced := Attach(ctx, bytes.NewReader(native), int64(len(native)), idx, nil)
	assert.True(t, replaced)
	assert.True(t, m.IsSeekable())
}
