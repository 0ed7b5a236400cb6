package seekmap

import (
	"context"
	"io"
	"log/slog"

	"github.com/autobrr/go-fragindex/internal/fragindex"
)

// Native returns the seek map a demuxer would derive from the file on its
// own: the chunks of the first sidx when there is one, otherwise an
// unseekable map of unknown duration.
func Native(r io.ReaderAt, layout fragindex.Layout) SeekMap {
	if layout.HasSidx {
		if chunks, err := DecodeSidx(r, layout.SidxOffset, layout.SidxSize); err == nil {
			return chunks
		}
	}
	return NewUnseekable(DurationUnknown)
}

// Attach runs the native seek map of the file through an Interceptor holding
// idx and returns the map the pipeline ends up with. replaced reports whether
// idx took over. A canceled ctx cuts the layout walk short, which leaves the
// native map unseekable.
func Attach(ctx context.Context, r io.ReaderAt, size int64, idx fragindex.Index, logger *slog.Logger) (m SeekMap, replaced bool) {
	var replacement *ChunkIndex
	if chunks, ok := FromIndex(idx); ok {
		replacement = chunks
	}
	recorder := &Recorder{}
	interceptor := NewInterceptor(recorder, replacement, logger)
	interceptor.SeekMap(Native(r, fragindex.ProbeLayout(ctx, r, size)))
	interceptor.EndTracks()
	return recorder.Last(), interceptor.Replaced()
}
