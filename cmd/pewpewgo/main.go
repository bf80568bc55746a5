package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"

	"github.com/grafana/pewpewgo/internal/engine"
	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pewpewgo <run|try> [flags] <CONFIG>")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runMain(os.Args[2:])
	case "try":
		err = tryMain(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want run or try)\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pewpewgo: %v\n", err)
		os.Exit(1)
	}
}

// runMain implements `pewpewgo run`: load config, then build and start
// the engine.
func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	outputFormat := fs.String("output-format", "human", "Output format for stats: human or json")
	statsFile := fs.String("stats-file", "", "File to write a stream of stats snapshots to (ndjson)")
	statsFileFormat := fs.String("stats-file-format", "json", "Format for --stats-file (only json is supported)")
	resultsDir := fs.String("results-directory", "", "Directory to store --stats-file output under")
	startAt := fs.Duration("start-at", 0, "Delay before the test begins")
	watch := fs.Bool("watch", false, "Re-read the config file on SIGHUP")
	logLevel := fs.String("log.level", "info", "Logging level: debug, info, warn, or error")
	logFormat := fs.String("log.format", "logfmt", "Logging format: logfmt or json")
	hedgeDelay := fs.Duration("hedge-delay", 0, "Issue a second request after this long if the first hasn't returned (0 disables hedging)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run requires exactly one CONFIG argument, got %d", fs.NArg())
	}
	configPath := fs.Arg(0)

	if err := logging.InitLogger(*logLevel, *logFormat); err != nil {
		return err
	}

	resolved, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if *startAt > 0 {
		level.Info(logging.Logger).Log("msg", "waiting for --start-at", "delay", startAt.String())
		time.Sleep(*startAt)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := engine.RunOptions{
		OutputFormat:     *outputFormat,
		StatsFile:        *statsFile,
		StatsFileFormat:  *statsFileFormat,
		ResultsDirectory: *resultsDir,
		HedgeDelay:       *hedgeDelay,
	}

	if *watch {
		return runWatched(ctx, configPath, opts)
	}
	return runOnce(ctx, resolved, opts)
}

func runOnce(ctx context.Context, resolved *config.Resolved, opts engine.RunOptions) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e, err := engine.Build(resolved, opts, cancel)
	if err != nil {
		return err
	}
	defer e.Close()

	level.Info(logging.Logger).Log("msg", "starting load test", "endpoints", len(resolved.Endpoints))
	err = e.Run(runCtx)
	level.Info(logging.Logger).Log("msg", "load test stopped")
	return err
}

// runWatched re-reads configPath and rebuilds the engine on every SIGHUP,
// draining the previous run for general.watch_transition_time before the
// new one starts.
func runWatched(ctx context.Context, configPath string, opts engine.RunOptions) error {
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		resolved, err := config.Load(configPath)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		e, err := engine.Build(resolved, opts, cancel)
		if err != nil {
			cancel()
			return err
		}

		done := make(chan error, 1)
		go func() { done <- e.Run(runCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			e.Close()
			return nil
		case <-reload:
			level.Info(logging.Logger).Log("msg", "reload requested, draining in-flight requests")
			if wait := resolved.General.WatchTransitionTime; wait != nil {
				time.Sleep(*wait)
			}
			cancel()
			<-done
			e.Close()
			// loop back around: re-read and rebuild.
		case err := <-done:
			cancel()
			e.Close()
			return err
		}
	}
}

// tryMain implements `pewpewgo try`.
func tryMain(args []string) error {
	fs := flag.NewFlagSet("try", flag.ExitOnError)
	runLoggers := fs.Bool("loggers", false, "Also run each endpoint's logs queries")
	file := fs.String("file", "", "Write output here instead of stdout")
	format := fs.String("format", "human", "Output format: human or json")
	resultsDir := fs.String("results-directory", "", "Directory to store --file output under")
	var includes stringSliceFlag
	fs.Var(&includes, "include", "Filter endpoints by tag: key=value or key!=value (repeatable)")
	logLevel := fs.String("log.level", "warn", "Logging level: debug, info, warn, or error")
	logFormat := fs.String("log.format", "logfmt", "Logging format: logfmt or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("try requires exactly one CONFIG argument, got %d", fs.NArg())
	}
	configPath := fs.Arg(0)

	if err := logging.InitLogger(*logLevel, *logFormat); err != nil {
		return err
	}

	resolved, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Try(ctx, resolved, engine.TryOptions{
		RunLoggers:       *runLoggers,
		File:             *file,
		Format:           *format,
		Include:          includes,
		ResultsDirectory: *resultsDir,
	})
}

// stringSliceFlag accumulates repeated -include flags, matching the
// standard library's own repeatable-flag idiom (flag.Value).
type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprint([]string(*s))
}

func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
