package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobrr/go-fragindex/internal/cli"
	"github.com/autobrr/go-fragindex/internal/config"
	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/observability"
	"github.com/autobrr/go-fragindex/internal/seekmap"
)

var seekCmd = &cobra.Command{
	Use:   "seek --time=DURATION <file>",
	Short: "Resolve a seek target to a byte position",
	Long: `Index a file and print the seek points a player would use for the target
time. Files that carry their own sidx are answered from it.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

var sidxCmd = &cobra.Command{
	Use:   "sidx [--out=FILE] <file>",
	Short: "Export the fragment index as a sidx box",
	Long: `Index a file and write a standalone sidx box describing its fragments.
The box is written to stdout unless --out is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runSidx,
}

func init() {
	seekCmd.Flags().Duration("time", 0, "Seek target, e.g. 90s or 1h2m3s")
	seekCmd.Flags().String("output", "text", "Output format (text, json)")
	seekCmd.Flags().String("config", "", "Config file path")

	sidxCmd.Flags().String("out", "", "Write the box to this file instead of stdout")
	sidxCmd.Flags().Uint32("reference-id", 1, "Track id written as the sidx reference id")
	sidxCmd.Flags().Uint64("first-offset", 0, "Bytes between the end of the sidx and the first moof")
	sidxCmd.Flags().String("config", "", "Config file path")
}

// createOutput opens the --out destination of the sidx command.
var createOutput = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// scanSetup loads the config named by --config and returns a builder and a
// logger that only reports problems.
func scanSetup(cmd *cobra.Command) (*fragindex.Builder, *slog.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	logger := observability.NewLoggerWithWriter(cfg.Logging, cmd.ErrOrStderr())
	return fragindex.NewBuilder(fragindex.OptionsFromConfig(cfg.Scan), logger), logger, nil
}

func runSeek(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetDuration("time")
	if target < 0 {
		return fmt.Errorf("--time must not be negative")
	}
	output, _ := cmd.Flags().GetString("output")
	if !strings.EqualFold(output, "text") && !strings.EqualFold(output, "json") {
		return fmt.Errorf("unsupported output format: %s", output)
	}

	builder, logger, err := scanSetup(cmd)
	if err != nil {
		return err
	}
	result, err := cli.Seek(cmd.Context(), builder, args[0], target, logger)
	if err != nil {
		return err
	}
	return cli.WriteSeekResult(cmd.OutOrStdout(), result, strings.EqualFold(output, "json"))
}

func runSidx(cmd *cobra.Command, args []string) (err error) {
	builder, _, err := scanSetup(cmd)
	if err != nil {
		return err
	}
	referenceID, _ := cmd.Flags().GetUint32("reference-id")
	firstOffset, _ := cmd.Flags().GetUint64("first-offset")
	outPath, _ := cmd.Flags().GetString("out")

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		var file io.WriteCloser
		file, err = createOutput(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer func() {
			if closeErr := file.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("closing %s: %w", outPath, closeErr)
			}
		}()
		w = file
	}

	report, err := cli.ExportSidx(cmd.Context(), builder, args[0], seekmap.SidxOptions{
		ReferenceID: referenceID,
		FirstOffset: firstOffset,
	}, w)
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote sidx with %d references to %s\n", report.Index.Len(), outPath)
	}
	return nil
}

