package seekmap

import (
	"log/slog"
	"sync"
)

// Output is the sink a demuxer reports its discoveries to.
type Output interface {
	SeekMap(m SeekMap)
	EndTracks()
}

// Resolve picks the map handed to the pipeline. A seekable native map always
// wins; an unseekable one is replaced when a replacement exists.
func Resolve(native SeekMap, replacement *ChunkIndex) SeekMap {
	if shouldReplace(native, replacement) {
		return replacement
	}
	return native
}

func shouldReplace(native SeekMap, replacement *ChunkIndex) bool {
	if replacement == nil {
		return false
	}
	return native == nil || !native.IsSeekable()
}

// Interceptor sits between a demuxer and its Output and swaps unseekable
// seek maps for a prebuilt chunk index. Everything else passes through.
type Interceptor struct {
	out         Output
	replacement *ChunkIndex
	logger      *slog.Logger

	mu       sync.Mutex
	replaced bool
}

func NewInterceptor(out Output, replacement *ChunkIndex, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Interceptor{out: out, replacement: replacement, logger: logger}
}

func (i *Interceptor) SeekMap(m SeekMap) {
	if !shouldReplace(m, i.replacement) {
		i.out.SeekMap(m)
		return
	}
	i.mu.Lock()
	i.replaced = true
	i.mu.Unlock()
	i.logger.Debug("replacing unseekable seek map",
		slog.Int("chunks", i.replacement.Len()),
		slog.Int64("duration_us", i.replacement.DurationUs()),
	)
	i.out.SeekMap(i.replacement)
}

func (i *Interceptor) EndTracks() {
	i.out.EndTracks()
}

// Replaced reports whether a seek map was substituted.
func (i *Interceptor) Replaced() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.replaced
}

// Recorder is an Output that keeps the last seek map it was given.
type Recorder struct {
	mu      sync.Mutex
	seekMap SeekMap
	ended   bool
}

func (r *Recorder) SeekMap(m SeekMap) {
	r.mu.Lock()
	r.seekMap = m
	r.mu.Unlock()
}

func (r *Recorder) EndTracks() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
}

func (r *Recorder) Last() SeekMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seekMap
}

func (r *Recorder) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}
