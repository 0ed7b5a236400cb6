// Package fragindex builds seek indexes for fragmented MP4 files that carry
// no sidx or mfra box and exposes them as seek maps.
package fragindex

import (
	"context"
	"io"
	"log/slog"

	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/seekmap"
)

// Index types
type Index = fragindex.Index
type Fragment = fragindex.Fragment
type Builder = fragindex.Builder
type Options = fragindex.Options
type Report = fragindex.Report
type Layout = fragindex.Layout
type MovieInfo = fragindex.MovieInfo
type Track = fragindex.Track
type ScanStats = fragindex.ScanStats
type StopReason = fragindex.StopReason

// Seek map types
type SeekMap = seekmap.SeekMap
type SeekPoint = seekmap.SeekPoint
type SeekPoints = seekmap.SeekPoints
type ChunkIndex = seekmap.ChunkIndex
type Unseekable = seekmap.Unseekable
type Output = seekmap.Output
type Interceptor = seekmap.Interceptor
type SidxOptions = seekmap.SidxOptions

const (
	StopEOF          = fragindex.StopEOF
	StopCorruptBox   = fragindex.StopCorruptBox
	StopMaxFragments = fragindex.StopMaxFragments
	StopCanceled     = fragindex.StopCanceled
	DurationUnknown  = seekmap.DurationUnknown
)

var (
	ErrInvalidIndex   = fragindex.ErrInvalidIndex
	ErrLengthMismatch = seekmap.ErrLengthMismatch
	ErrNotSeekable    = seekmap.ErrNotSeekable
	ErrSidxOverflow   = seekmap.ErrSidxOverflow
)

// Building
func DefaultOptions() Options {
	return fragindex.DefaultOptions()
}

func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	return fragindex.NewBuilder(opts, logger)
}

// BuildFile indexes path with default options. It never fails; unreadable
// files produce an empty, unseekable index.
func BuildFile(ctx context.Context, path string) Index {
	return fragindex.NewBuilder(fragindex.DefaultOptions(), nil).BuildFile(ctx, path)
}

func ProbeLayout(ctx context.Context, r io.ReaderAt, size int64) Layout {
	return fragindex.ProbeLayout(ctx, r, size)
}

// Seek maps
func FromIndex(idx Index) (*ChunkIndex, bool) {
	return seekmap.FromIndex(idx)
}

func NewChunkIndex(sizes, offsets, durationsUs, timesUs []int64) (*ChunkIndex, error) {
	return seekmap.NewChunkIndex(sizes, offsets, durationsUs, timesUs)
}

func NewInterceptor(out Output, replacement *ChunkIndex, logger *slog.Logger) *Interceptor {
	return seekmap.NewInterceptor(out, replacement, logger)
}

func Resolve(native SeekMap, replacement *ChunkIndex) SeekMap {
	return seekmap.Resolve(native, replacement)
}

func EncodeSidx(w io.Writer, idx Index, opts SidxOptions) error {
	return seekmap.EncodeSidx(w, idx, opts)
}

func DecodeSidx(r io.ReaderAt, offset, size int64) (*ChunkIndex, error) {
	return seekmap.DecodeSidx(r, offset, size)
}

// Rendering
func RenderText(reports []Report, full bool) string {
	return fragindex.RenderText(reports, full)
}

func RenderJSON(reports []Report, full bool) string {
	return fragindex.RenderJSON(reports, full)
}

func FormatVersion(version string) string {
	return fragindex.FormatVersion(version)
}
