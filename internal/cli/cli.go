package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/autobrr/go-fragindex/internal/config"
	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/observability"
)

const (
	exitOK    = 0
	exitError = 1
)

type Options struct {
	Full       bool
	Verbose    bool
	Output     string
	LogFile    string
	ConfigPath string
	Jobs       int
}

// Run indexes every file named in args[1:] and prints one report per file.
// It returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return exitError
	}

	program := programName(args[0])
	opts := Options{Jobs: runtime.NumCPU()}
	files := make([]string, 0)

	for i := 1; i < len(args); i++ {
		original := args[i]
		normalized := normalizeArg(original)

		switch {
		case normalized == "--full" || normalized == "-f":
			opts.Full = true
		case normalized == "--verbose" || normalized == "-v":
			opts.Verbose = true
		case normalized == "--help" || normalized == "-h":
			Help(program, stdout)
			return exitOK
		case normalized == "--help-output":
			HelpOutput(program, stdout)
			return exitOK
		case strings.HasPrefix(normalized, "--output="):
			value, _ := valueAfterEqual(original)
			if !validOutput(value) {
				HelpOutput(program, stderr)
				return exitError
			}
			opts.Output = value
		case strings.HasPrefix(normalized, "--jobs="):
			value, _ := valueAfterEqual(original)
			jobs, err := strconv.Atoi(value)
			if err != nil || jobs < 1 {
				fmt.Fprintf(stderr, "invalid --jobs value: %s\n", value)
				return exitError
			}
			opts.Jobs = jobs
		case strings.HasPrefix(normalized, "--config="):
			opts.ConfigPath, _ = valueAfterEqual(original)
		case strings.HasPrefix(normalized, "--logfile="):
			opts.LogFile, _ = valueAfterEqual(original)
		case normalized == "--version":
			Version(stdout)
			return exitOK
		case normalized == "--":
			files = append(files, args[i+1:]...)
			i = len(args)
		case strings.HasPrefix(normalized, "-"):
			fmt.Fprintf(stderr, "unknown option: %s\n", original)
			return Usage(program, stderr)
		default:
			files = append(files, original)
		}
	}

	if len(files) == 0 {
		return Usage(program, stdout)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitError
	}
	logger := newLogger(cfg.Logging, opts.Verbose, stderr)

	output, filesCount := runCore(ctx, opts, fragindex.OptionsFromConfig(cfg.Scan), logger, files, stderr)
	if output != "" {
		fmt.Fprint(stdout, output)
	}

	if opts.LogFile != "" {
		if err := writeLogFile(opts.LogFile, output); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return exitError
		}
	}

	if filesCount > 0 {
		return exitOK
	}
	return exitError
}

// newLogger keeps batch output quiet unless asked otherwise: per file
// summaries show up with --verbose only.
func newLogger(cfg config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	if verbose {
		cfg.Level = "debug"
	} else if cfg.Level == "debug" || cfg.Level == "info" {
		cfg.Level = "warn"
	}
	return observability.NewLoggerWithWriter(cfg, w)
}

func runCore(ctx context.Context, opts Options, builderOpts fragindex.Options, logger *slog.Logger, files []string, stderr io.Writer) (string, int) {
	builder := fragindex.NewBuilder(builderOpts, logger)
	reports, errs := AnalyzeFiles(ctx, builder, files, opts.Jobs)
	for _, err := range errs {
		fmt.Fprintln(stderr, err.Error())
	}
	if len(reports) == 0 {
		return "", 0
	}

	if strings.EqualFold(opts.Output, "JSON") {
		return fragindex.RenderJSON(reports, opts.Full), len(reports)
	}
	return fragindex.RenderText(reports, opts.Full), len(reports)
}

// AnalyzeFiles indexes files with at most jobs scans in flight. Reports keep
// the order of files; files that could not be opened are left out and their
// errors returned in the same order.
func AnalyzeFiles(ctx context.Context, builder *fragindex.Builder, files []string, jobs int) ([]fragindex.Report, []error) {
	if jobs < 1 {
		jobs = 1
	}
	reports := make([]fragindex.Report, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, file := range files {
		g.Go(func() error {
			reports[i], errs[i] = builder.Analyze(gctx, file)
			return nil
		})
	}
	_ = g.Wait()

	okReports := make([]fragindex.Report, 0, len(files))
	failures := make([]error, 0)
	for i := range files {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		okReports = append(okReports, reports[i])
	}
	return okReports, failures
}

func validOutput(value string) bool {
	return strings.EqualFold(value, "text") || strings.EqualFold(value, "json")
}

func programName(arg0 string) string {
	name := filepath.Base(arg0)
	if runtime.GOOS == "windows" {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

func normalizeArg(arg string) string {
	eq := strings.IndexByte(arg, '=')
	if eq == -1 {
		eq = len(arg)
	}
	return strings.ToLower(arg[:eq]) + arg[eq:]
}

func valueAfterEqual(arg string) (string, bool) {
	eq := strings.IndexByte(arg, '=')
	if eq == -1 {
		return "", false
	}
	return arg[eq+1:], true
}

func writeLogFile(path, output string) error {
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return fmt.Errorf("writing log file: %w", err)
	}
	return nil
}
