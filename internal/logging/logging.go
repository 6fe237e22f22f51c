// Package logging configures the leveled, timestamped loggers used by every
// bootstrap component. Each component writes to its own log file under the
// log directory and mirrors every line to the invoking terminal.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// DefaultLogDir is where per-component log files are written when the
// caller does not override it.
const DefaultLogDir = "/var/log/clusterforge"

// ForComponent returns a logger entry tagged with the component name,
// writing to <logDir>/<component>.log and mirroring to stderr. The returned
// close function flushes and closes the log file.
//
// If the log file cannot be opened (e.g. running unprivileged), logging
// degrades to terminal-only with a warning rather than failing the run.
func ForComponent(component, logDir string) (*logrus.Entry, func() error) {
	logger := newLogger(os.Getenv("CLUSTERFORGE_LOG_LEVEL"))

	if logDir == "" {
		logDir = DefaultLogDir
	}

	closeFn := func() error { return nil }

	if err := os.MkdirAll(logDir, 0o755); err == nil {
		path := filepath.Join(logDir, component+".log")
		// #nosec G304 - path is derived from a fixed directory and component name
		file, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr == nil {
			logger.SetOutput(io.MultiWriter(os.Stderr, file))
			closeFn = file.Close
		} else {
			logger.Warnf("cannot open log file %s, logging to terminal only: %v", path, ferr)
		}
	} else {
		logger.Warnf("cannot create log directory %s, logging to terminal only: %v", logDir, err)
	}

	return logger.WithField("component", component), closeFn
}

// NewTestLogger returns an entry writing to the given writer, for tests.
func NewTestLogger(out io.Writer) *logrus.Entry {
	logger := newLogger("debug")
	logger.SetOutput(out)
	return logger.WithField("component", "test")
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)
	setLevel(logger, level)
	return logger
}

func setLevel(l *logrus.Logger, level string) {
	switch level {
	case "trace":
		l.SetLevel(logrus.TraceLevel)
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info", "":
		l.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
		l.Warnf("unknown log level %q, defaulting to info", level)
	}
}

// Remediation formats a fatal prerequisite message so every failure states
// which step failed and what the operator should do next.
func Remediation(component, step, action string) string {
	return fmt.Sprintf("%s failed at step %q; %s, then re-run `clusterforge %s`", component, step, action, component)
}
