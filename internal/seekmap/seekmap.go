// Package seekmap exposes fragment indexes to a playback pipeline as seek
// maps and decides when a built index should replace the demuxer's own map.
package seekmap

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

var (
	// ErrLengthMismatch is returned when the parallel chunk arrays differ in length.
	ErrLengthMismatch = errors.New("chunk index arrays differ in length")
	// ErrNotSeekable is returned when an index has no entries.
	ErrNotSeekable = errors.New("index is not seekable")
)

// DurationUnknown is reported by maps that cannot tell their duration.
const DurationUnknown = int64(-1)

// SeekPoint pairs a presentation time with the byte offset to resume from.
type SeekPoint struct {
	TimeUs   int64 `json:"time_us"`
	Position int64 `json:"position"`
}

// SeekPoints holds one or two candidate points around a seek target. Second
// equals First when only one point is known.
type SeekPoints struct {
	First  SeekPoint `json:"first"`
	Second SeekPoint `json:"second"`
}

func NewSeekPoints(first SeekPoint) SeekPoints {
	return SeekPoints{First: first, Second: first}
}

// SeekMap is what the playback pipeline consults to translate a seek target
// into a byte offset.
type SeekMap interface {
	IsSeekable() bool
	DurationUs() int64
	SeekPoints(timeUs int64) SeekPoints
}

// Unseekable is the map a demuxer reports when it found no index in the file.
// Every target resolves to StartPosition.
type Unseekable struct {
	Duration      int64
	StartPosition int64
}

func NewUnseekable(durationUs int64) Unseekable {
	return Unseekable{Duration: durationUs}
}

func (u Unseekable) IsSeekable() bool  { return false }
func (u Unseekable) DurationUs() int64 { return u.Duration }

func (u Unseekable) SeekPoints(int64) SeekPoints {
	return NewSeekPoints(SeekPoint{Position: u.StartPosition})
}

// ChunkIndex is a seek map over contiguous chunks described by four parallel
// arrays.
type ChunkIndex struct {
	sizes       []int64
	offsets     []int64
	durationsUs []int64
	timesUs     []int64
}

func NewChunkIndex(sizes, offsets, durationsUs, timesUs []int64) (*ChunkIndex, error) {
	n := len(sizes)
	if len(offsets) != n || len(durationsUs) != n || len(timesUs) != n {
		return nil, fmt.Errorf("%w: sizes=%d offsets=%d durations=%d times=%d",
			ErrLengthMismatch, n, len(offsets), len(durationsUs), len(timesUs))
	}
	if n == 0 {
		return nil, ErrNotSeekable
	}
	return &ChunkIndex{
		sizes:       clone(sizes),
		offsets:     clone(offsets),
		durationsUs: clone(durationsUs),
		timesUs:     clone(timesUs),
	}, nil
}

// FromIndex builds a ChunkIndex from a fragment index. ok is false for an
// index without fragments.
func FromIndex(idx fragindex.Index) (*ChunkIndex, bool) {
	if !idx.IsSeekable() {
		return nil, false
	}
	chunks, err := NewChunkIndex(idx.Sizes(), idx.Offsets(), idx.DurationsUs(), idx.TimesUs())
	if err != nil {
		return nil, false
	}
	return chunks, true
}

func (c *ChunkIndex) Len() int {
	return len(c.timesUs)
}

func (c *ChunkIndex) IsSeekable() bool {
	return true
}

func (c *ChunkIndex) DurationUs() int64 {
	last := len(c.timesUs) - 1
	d := c.timesUs[last] + c.durationsUs[last]
	if d < c.timesUs[last] {
		return math.MaxInt64
	}
	return d
}

// ChunkIndex returns the index of the last chunk starting at or before
// timeUs, or 0 when timeUs precedes every chunk.
func (c *ChunkIndex) ChunkIndex(timeUs int64) int {
	i := sort.Search(len(c.timesUs), func(i int) bool {
		return c.timesUs[i] > timeUs
	}) - 1
	if i < 0 {
		return 0
	}
	return i
}

func (c *ChunkIndex) SeekPoints(timeUs int64) SeekPoints {
	i := c.ChunkIndex(timeUs)
	first := SeekPoint{TimeUs: c.timesUs[i], Position: c.offsets[i]}
	if first.TimeUs >= timeUs || i == len(c.timesUs)-1 {
		return NewSeekPoints(first)
	}
	return SeekPoints{
		First:  first,
		Second: SeekPoint{TimeUs: c.timesUs[i+1], Position: c.offsets[i+1]},
	}
}

func (c *ChunkIndex) Sizes() []int64       { return clone(c.sizes) }
func (c *ChunkIndex) Offsets() []int64     { return clone(c.offsets) }
func (c *ChunkIndex) DurationsUs() []int64 { return clone(c.durationsUs) }
func (c *ChunkIndex) TimesUs() []int64     { return clone(c.timesUs) }

func clone(in []int64) []int64 {
	out := make([]int64, len(in))
	copy(out, in)
	return out
}
