package seekmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

var ErrSidxOverflow = errors.New("fragment does not fit in a sidx reference")

const maxSidxSize = int64(16 << 20)

type SidxOptions struct {
	// ReferenceID is the track the index refers to. Defaults to 1.
	ReferenceID uint32
	// Timescale of the durations written. Defaults to the index timescale.
	Timescale uint32
	// FirstOffset is the distance from the end of the sidx box to the first
	// moof. Zero places the box directly in front of the first fragment.
	FirstOffset uint64
}

// BuildSidx describes every fragment of idx as one segment index reference.
// Each reference spans from its moof to the next one so the references stay
// contiguous even when other boxes sit between fragments.
func BuildSidx(idx fragindex.Index, opts SidxOptions) (*mp4.SidxBox, error) {
	if !idx.IsSeekable() {
		return nil, ErrNotSeekable
	}
	if opts.ReferenceID == 0 {
		opts.ReferenceID = 1
	}
	if opts.Timescale == 0 {
		opts.Timescale = idx.Timescale()
	}
	if opts.Timescale == 0 {
		opts.Timescale = 1_000_000
	}

	fragments := idx.Fragments()
	sidx := &mp4.SidxBox{
		Version:     1,
		ReferenceID: opts.ReferenceID,
		Timescale:   opts.Timescale,
		FirstOffset: opts.FirstOffset,
		SidxRefs:    make([]mp4.SidxRef, 0, len(fragments)),
	}
	for i, f := range fragments {
		size := f.Size
		if i+1 < len(fragments) {
			size = fragments[i+1].Position - f.Position
		}
		duration := microsToUnits(f.DurationUs, opts.Timescale)
		if size > math.MaxUint32>>1 || duration > math.MaxUint32 {
			return nil, fmt.Errorf("%w: fragment %d size=%d duration=%d", ErrSidxOverflow, i, size, duration)
		}
		sidx.SidxRefs = append(sidx.SidxRefs, mp4.SidxRef{
			ReferencedSize:     uint32(size),
			SubSegmentDuration: uint32(duration),
			StartsWithSAP:      1,
		})
	}
	return sidx, nil
}

func EncodeSidx(w io.Writer, idx fragindex.Index, opts SidxOptions) error {
	sidx, err := BuildSidx(idx, opts)
	if err != nil {
		return err
	}
	if err := sidx.Encode(w); err != nil {
		return fmt.Errorf("encoding sidx: %w", err)
	}
	return nil
}

// DecodeSidx reads the sidx box at offset and turns its references into a
// ChunkIndex with absolute byte offsets.
func DecodeSidx(r io.ReaderAt, offset, size int64) (*ChunkIndex, error) {
	if size <= 0 || size > maxSidxSize {
		return nil, fmt.Errorf("decoding sidx: unsupported box size %d", size)
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading sidx: %w", err)
	}
	box, err := mp4.DecodeBox(uint64(offset), bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding sidx: %w", err)
	}
	sidx, ok := box.(*mp4.SidxBox)
	if !ok {
		return nil, fmt.Errorf("decoding sidx: found %s box", box.Type())
	}
	return chunksFromSidx(sidx, offset+size)
}

func chunksFromSidx(sidx *mp4.SidxBox, anchor int64) (*ChunkIndex, error) {
	n := len(sidx.SidxRefs)
	if n == 0 || sidx.Timescale == 0 {
		return nil, ErrNotSeekable
	}
	sizes := make([]int64, n)
	offsets := make([]int64, n)
	durations := make([]int64, n)
	times := make([]int64, n)

	position := anchor + int64(sidx.FirstOffset)
	units := sidx.EarliestPresentationTime
	for i, ref := range sidx.SidxRefs {
		sizes[i] = int64(ref.ReferencedSize)
		offsets[i] = position
		times[i] = fragindex.UnitsToMicros(units, sidx.Timescale)
		durations[i] = fragindex.UnitsToMicros(units+uint64(ref.SubSegmentDuration), sidx.Timescale) - times[i]
		position += int64(ref.ReferencedSize)
		units += uint64(ref.SubSegmentDuration)
	}
	return NewChunkIndex(sizes, offsets, durations, times)
}

func microsToUnits(us int64, timescale uint32) uint64 {
	if us <= 0 {
		return 0
	}
	ts := uint64(timescale)
	whole := uint64(us) / 1_000_000
	rem := uint64(us) % 1_000_000
	return whole*ts + rem*ts/1_000_000
}
