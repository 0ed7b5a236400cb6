package fragindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/autobrr/go-fragindex/internal/config"
	"github.com/autobrr/go-fragindex/internal/observability"
)

type Options struct {
	MaxMoovSize        int64
	MaxMoofSize        int64
	MaxFragments       int
	FallbackDurationUs int64
	// MaxScanTime bounds a single build. Zero disables the deadline.
	MaxScanTime time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxMoovSize:        defaultMaxMoovSize,
		MaxMoofSize:        defaultMaxMoofSize,
		MaxFragments:       defaultMaxFragments,
		FallbackDurationUs: DefaultFallbackDurationUs,
		MaxScanTime:        time.Minute,
	}
}

// OptionsFromConfig converts the scan section of a validated configuration.
func OptionsFromConfig(scan config.ScanConfig) Options {
	return Options{
		MaxMoovSize:        scan.MaxMoovBytes(),
		MaxMoofSize:        scan.MaxMoofBytes(),
		MaxFragments:       scan.MaxFragments,
		FallbackDurationUs: scan.FallbackDuration.Microseconds(),
		MaxScanTime:        scan.MaxScanTime,
	}
}

// Builder runs the two scan passes over a file. It keeps no per-file state and
// is safe for concurrent use.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{opts: opts, logger: observability.WithComponent(logger, "fragindex")}
}

func (b *Builder) Options() Options {
	return b.opts
}

// Result is the outcome of scanning one file.
type Result struct {
	Movie MovieInfo
	Index Index
	Stats ScanStats
}

// Build scans r and returns the movie info, the fragment index and scan
// statistics. It never fails; unreadable input yields an empty index.
func (b *Builder) Build(ctx context.Context, r io.ReaderAt, size int64) Result {
	ctx, cancel := b.scanContext(ctx)
	defer cancel()

	movie := ScanMovie(r, size, b.opts.MaxMoovSize)
	if !movie.Found {
		b.logger.Debug("no moov found, using default timescale", slog.Uint64("timescale", uint64(movie.Timescale)))
	}
	fragments, stats := ScanFragments(ctx, r, size, movie, ScanOptions{
		MaxFragments:       b.opts.MaxFragments,
		MaxMoofSize:        b.opts.MaxMoofSize,
		FallbackDurationUs: b.opts.FallbackDurationUs,
		Logger:             b.logger,
	})
	return Result{
		Movie: movie,
		Index: NewIndex(fragments, movie.Timescale),
		Stats: stats,
	}
}

func (b *Builder) scanContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opts.MaxScanTime > 0 {
		return context.WithTimeout(ctx, b.opts.MaxScanTime)
	}
	return context.WithCancel(ctx)
}

// BuildFile indexes the file at path. Any failure to open or stat the file is
// logged and produces an empty, unseekable index.
func (b *Builder) BuildFile(ctx context.Context, path string) Index {
	report, err := b.Analyze(ctx, path)
	if err != nil {
		observability.WithError(b.logger, err).Warn("could not index file", slog.String("path", path))
		return EmptyIndex()
	}
	return report.Index
}

// Report describes one indexed file.
type Report struct {
	Path    string
	Size    int64
	ModTime time.Time
	Layout  Layout
	Movie   MovieInfo
	Index   Index
	Stats   ScanStats
}

func (b *Builder) Analyze(ctx context.Context, path string) (Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Report{}, fmt.Errorf("reading file info for %s: %w", path, err)
	}
	if stat.IsDir() {
		return Report{}, fmt.Errorf("%s is a directory", path)
	}

	return b.AnalyzeReader(ctx, path, file, stat.Size(), stat.ModTime()), nil
}

// AnalyzeReader is Analyze over an already opened source.
func (b *Builder) AnalyzeReader(ctx context.Context, name string, r io.ReaderAt, size int64, modTime time.Time) Report {
	ctx, cancel := b.scanContext(ctx)
	defer cancel()

	layout := ProbeLayout(ctx, r, size)
	result := b.Build(ctx, r, size)

	attrs := []any{
		slog.String("path", name),
		slog.Int("fragments", result.Index.Len()),
		slog.Int64("duration_us", result.Index.DurationUs()),
		slog.Uint64("timescale", uint64(result.Movie.Timescale)),
		slog.Duration("elapsed", result.Stats.Elapsed),
	}
	if result.Stats.Truncated {
		attrs = append(attrs, slog.String("stop", string(result.Stats.Stop)))
		b.logger.Warn("fragment scan truncated", attrs...)
	} else {
		b.logger.Info("built fragment index", attrs...)
	}
	if layout.HasNativeIndex() {
		b.logger.Debug("file carries a native index", slog.String("path", name), slog.Bool("sidx", layout.HasSidx), slog.Bool("mfra", layout.HasMfra))
	}

	return Report{
		Path:    name,
		Size:    size,
		ModTime: modTime,
		Layout:  layout,
		Movie:   result.Movie,
		Index:   result.Index,
		Stats:   result.Stats,
	}
}
