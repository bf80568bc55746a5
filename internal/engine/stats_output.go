package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grafana/pewpewgo/pkg/stats"
)

// buildStatsWriters assembles the stats.Writer chain for --output-format
// and --stats-file: a human summary to stdout unless json-only output was
// requested, plus an ndjson file writer when --stats-file is set.
func buildStatsWriters(opts RunOptions) ([]stats.Writer, *closableFile, error) {
	var writers []stats.Writer

	switch opts.OutputFormat {
	case "json":
		writers = append(writers, stats.NewNDJSONWriter(os.Stdout))
	case "", "human":
		writers = append(writers, stats.NewSummaryWriter(os.Stdout))
	default:
		return nil, nil, fmt.Errorf("engine: unknown --output-format %q (want human or json)", opts.OutputFormat)
	}

	var cf *closableFile
	if opts.StatsFile != "" {
		path, err := ResolveResultsPath(opts.ResultsDirectory, opts.StatsFile)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: opening --stats-file %q: %w", path, err)
		}
		writers = append(writers, stats.NewNDJSONWriter(f))
		cf = &closableFile{close: f.Close}
	}

	return writers, cf, nil
}

// ResolveResultsPath joins path under dir (creating dir if needed) when
// dir is non-empty, rooting the stats file (run) or --file output (try)
// under one directory.
// A path is left untouched when dir is empty.
func ResolveResultsPath(dir, path string) (string, error) {
	if dir == "" || path == "" {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("engine: creating --results-directory %q: %w", dir, err)
	}
	return filepath.Join(dir, path), nil
}
