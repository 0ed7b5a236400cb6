// corpus_scan walks a directory tree, indexes every fragmented MP4 it finds
// and appends one JSON line per file. A state file remembers indexed file
// versions so an interrupted run can be resumed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/autobrr/go-fragindex/internal/config"
	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/observability"
)

type Config struct {
	Root       string
	OutputPath string
	StatePath  string
	Extensions []string
	MaxFiles   int
	SaveEvery  int
	DryRun     bool
}

type state struct {
	Version int             `json:"version"`
	Seen    map[string]bool `json:"seen"`
}

type result struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	Fragments    int    `json:"fragments"`
	DurationUs   int64  `json:"duration_us"`
	Timescale    uint32 `json:"timescale"`
	NativeIndex  bool   `json:"native_index"`
	FallbackUsed int    `json:"fallback_used,omitempty"`
	Stop         string `json:"stop"`
	Truncated    bool   `json:"truncated,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

func main() {
	cfg := Config{
		OutputPath: "fragindex-corpus.jsonl",
		StatePath:  ".fragindex-corpus-state.json",
		SaveEvery:  50,
	}
	var extensions string
	pflag.StringVar(&cfg.OutputPath, "output", cfg.OutputPath, "JSONL output path")
	pflag.StringVar(&cfg.StatePath, "state", cfg.StatePath, "scanner state path")
	pflag.StringVar(&extensions, "ext", ".mp4,.m4v,.m4s,.cmfv,.ismv", "comma-separated file extensions to index")
	pflag.IntVar(&cfg.MaxFiles, "max-files", 0, "stop after indexing this many files (0 = no limit)")
	pflag.IntVar(&cfg.SaveEvery, "save-every", cfg.SaveEvery, "write the state file after this many files")
	pflag.BoolVar(&cfg.DryRun, "dry-run", false, "list matching files only")
	configPath := pflag.String("config", "", "fragindex config file for scan limits")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fatalf("usage: corpus_scan [flags] <dir>")
	}
	cfg.Root = pflag.Arg(0)
	cfg.Extensions = parseExtensions(extensions)
	if cfg.SaveEvery < 1 {
		cfg.SaveEvery = 1
	}

	appCfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(appCfg.Logging)
	builder := fragindex.NewBuilder(fragindex.OptionsFromConfig(appCfg.Scan), logger)

	st, err := loadState(cfg.StatePath)
	if err != nil {
		fatalf("load state: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out io.Writer = io.Discard
	if !cfg.DryRun {
		file, err := openOutput(cfg.OutputPath)
		if err != nil {
			fatalf("open output: %v", err)
		}
		defer file.Close()
		out = file
	}

	indexed, skipped, failed := 0, 0, 0
	walkErr := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !matchesExtension(path, cfg.Extensions) {
			return nil
		}
		if cfg.MaxFiles > 0 && indexed >= cfg.MaxFiles {
			return fs.SkipAll
		}

		key, err := fragindex.StatKey(path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			return nil
		}
		if st.Seen[key.String()] {
			skipped++
			return nil
		}
		if cfg.DryRun {
			fmt.Println(key.Path)
			indexed++
			return nil
		}

		report, err := builder.Analyze(ctx, key.Path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			return nil
		}
		if err := writeJSONLine(out, toResult(report)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if report.Stats.Stop != fragindex.StopCanceled {
			st.Seen[key.String()] = true
		}
		indexed++
		if indexed%cfg.SaveEvery == 0 {
			if err := saveState(cfg.StatePath, st); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
			fmt.Printf("indexed=%d skipped=%d failed=%d\n", indexed, skipped, failed)
		}
		return nil
	})

	if !cfg.DryRun {
		if err := saveState(cfg.StatePath, st); err != nil {
			fatalf("save state: %v", err)
		}
	}
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		fatalf("%v", walkErr)
	}
	fmt.Printf("done indexed=%d skipped=%d failed=%d output=%s\n", indexed, skipped, failed, cfg.OutputPath)
}

func toResult(report fragindex.Report) result {
	return result{
		Path:         report.Path,
		Size:         report.Size,
		Fragments:    report.Index.Len(),
		DurationUs:   report.Index.DurationUs(),
		Timescale:    report.Movie.Timescale,
		NativeIndex:  report.Layout.HasNativeIndex(),
		FallbackUsed: report.Stats.FallbackUsed,
		Stop:         string(report.Stats.Stop),
		Truncated:    report.Stats.Truncated,
		ElapsedMs:    report.Stats.Elapsed.Milliseconds(),
	}
}

func parseExtensions(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func matchesExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func loadState(path string) (*state, error) {
	st := &state{Version: 1, Seen: map[string]bool{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b, st); err != nil {
		return nil, err
	}
	if st.Seen == nil {
		st.Seen = map[string]bool{}
	}
	return st, nil
}

func saveState(path string, st *state) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func openOutput(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func writeJSONLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

