package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/seekmap"
)

// SeekResult is the outcome of resolving one seek target in one file.
type SeekResult struct {
	Path       string             `json:"path"`
	TimeUs     int64              `json:"time_us"`
	Seekable   bool               `json:"seekable"`
	Replaced   bool               `json:"replaced"`
	DurationUs int64              `json:"duration_us"`
	Points     seekmap.SeekPoints `json:"points"`
}

// Seek indexes path and resolves target the way a playback pipeline holding
// the index would.
func Seek(ctx context.Context, builder *fragindex.Builder, path string, target time.Duration, logger *slog.Logger) (SeekResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return SeekResult{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return SeekResult{}, fmt.Errorf("reading file info for %s: %w", path, err)
	}
	report := builder.AnalyzeReader(ctx, path, file, stat.Size(), stat.ModTime())

	timeUs := target.Microseconds()
	m, replaced := seekmap.Attach(ctx, file, report.Size, report.Index, logger)
	return SeekResult{
		Path:       path,
		TimeUs:     timeUs,
		Seekable:   m.IsSeekable(),
		Replaced:   replaced,
		DurationUs: m.DurationUs(),
		Points:     m.SeekPoints(timeUs),
	}, nil
}

func WriteSeekResult(w io.Writer, result SeekResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	source := "native"
	if result.Replaced {
		source = "fragment index"
	}
	fmt.Fprintf(w, "%s\n", result.Path)
	fmt.Fprintf(w, "  target   %s\n", time.Duration(result.TimeUs)*time.Microsecond)
	fmt.Fprintf(w, "  seekable %t (%s)\n", result.Seekable, source)
	fmt.Fprintf(w, "  first    %s @ byte %s\n", time.Duration(result.Points.First.TimeUs)*time.Microsecond, humanize.Comma(result.Points.First.Position))
	if result.Points.Second != result.Points.First {
		fmt.Fprintf(w, "  second   %s @ byte %s\n", time.Duration(result.Points.Second.TimeUs)*time.Microsecond, humanize.Comma(result.Points.Second.Position))
	}
	return nil
}

// ExportSidx indexes path and writes a sidx box describing its fragments to w.
func ExportSidx(ctx context.Context, builder *fragindex.Builder, path string, opts seekmap.SidxOptions, w io.Writer) (fragindex.Report, error) {
	report, err := builder.Analyze(ctx, path)
	if err != nil {
		return fragindex.Report{}, err
	}
	if err := seekmap.EncodeSidx(w, report.Index, opts); err != nil {
		return report, fmt.Errorf("exporting sidx for %s: %w", path, err)
	}
	return report, nil
}
