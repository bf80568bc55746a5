// Package logging wires the ambient go-kit logger every other package logs
// through, a RateLimited wrapper for anything that could fire once per
// request, and the LogSink that routes a run's `logs` blocks to
// stdout/stderr/files.
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"
)

// Logger is the process-wide logger every subsystem logs through, set up
// once by InitLogger. Defaults to a logfmt logger at info level so
// packages that log before InitLogger runs (flag parsing errors, etc.)
// still produce output.
var Logger log.Logger = newLogfmtLogger(os.Stderr, "info")

// InitLogger replaces Logger with one configured for the given level
// ("debug", "info", "warn", "error") and format ("logfmt" or "json").
func InitLogger(levelStr, format string) error {
	var base log.Logger
	switch format {
	case "json":
		base = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	case "", "logfmt":
		base = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	default:
		return fmt.Errorf("logging: unknown log format %q", format)
	}
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))

	filtered, err := filterLevel(base, levelStr)
	if err != nil {
		return err
	}
	Logger = filtered
	return nil
}

func newLogfmtLogger(w *os.File, levelStr string) log.Logger {
	base := log.With(log.NewLogfmtLogger(log.NewSyncWriter(w)), "ts", log.DefaultTimestampUTC)
	filtered, err := filterLevel(base, levelStr)
	if err != nil {
		// newLogfmtLogger is only ever called with a known-good literal
		// level, so this can't actually happen.
		return base
	}
	return filtered
}

// RateLimited wraps logger so it drops lines once they arrive faster than
// perSecond, for call sites that can fire once per request (a
// recoverable-error log, a per-attempt debug trace) where full verbosity
// would flood stderr under load. Composes with filterLevel's level gate the
// same way: a log.Logger wrapping another log.Logger.
func RateLimited(logger log.Logger, perSecond int) log.Logger {
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	return log.LoggerFunc(func(keyvals ...interface{}) error {
		if !limiter.AllowN(time.Now(), 1) {
			return nil
		}
		return logger.Log(keyvals...)
	})
}

func filterLevel(logger log.Logger, levelStr string) (log.Logger, error) {
	switch levelStr {
	case "debug":
		return level.NewFilter(logger, level.AllowDebug()), nil
	case "", "info":
		return level.NewFilter(logger, level.AllowInfo()), nil
	case "warn":
		return level.NewFilter(logger, level.AllowWarn()), nil
	case "error":
		return level.NewFilter(logger, level.AllowError()), nil
	default:
		return nil, fmt.Errorf("logging: unknown log level %q", levelStr)
	}
}
