// Package logs provides a common logging facility for kbuild.
// It supports output to stderr, stdout or systemd journald based on configuration.
package logs

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// LogOutput defines the output destination for logs
type LogOutput string

const (
	// OutputStderr sends logs to standard error, leaving stdout to the build driver
	OutputStderr LogOutput = "stderr"
	// OutputStdout sends logs to standard output
	OutputStdout LogOutput = "stdout"
	// OutputJournald sends logs to systemd journald
	OutputJournald LogOutput = "journald"
	// OutputAuto selects journald when stderr is not a terminal and journald is available, otherwise stderr
	OutputAuto LogOutput = "auto"
)

// Logger wraps the charm log.Logger with additional configuration
type Logger struct {
	*log.Logger
	output LogOutput
}

// Config holds the configuration for the logger
type Config struct {
	// Output specifies where logs should be sent (stderr, stdout, journald, auto)
	Output LogOutput
	// Level sets the minimum log level (debug, info, warn, error)
	Level string
	// Prefix sets a prefix for all log messages
	Prefix string
	// Interactive reports whether stderr is attached to a terminal
	Interactive bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Output:      OutputStderr,
		Level:       "info",
		Prefix:      "",
		Interactive: true,
	}
}

// journaldAvailable checks if systemd-journald is available on the system
func journaldAvailable() bool {
	// Check if systemd-cat command exists (used to send to journald)
	_, err := exec.LookPath("systemd-cat")
	if err != nil {
		return false
	}
	// Check if journald socket exists
	if _, err := os.Stat("/run/systemd/journal/socket"); err != nil {
		return false
	}
	return true
}

// ParseLevel converts a string level to log.Level
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// New creates a new Logger with the given configuration
func New(cfg Config) *Logger {
	var writer io.Writer
	var output LogOutput

	switch cfg.Output {
	case OutputStdout:
		writer = os.Stdout
		output = OutputStdout
	case OutputJournald:
		if journaldAvailable() {
			writer = newJournaldWriter()
			output = OutputJournald
		} else {
			writer = os.Stderr
			output = OutputStderr
		}
	case OutputAuto:
		// A person watching the build wants logs inline with make's output
		if !cfg.Interactive && journaldAvailable() {
			writer = newJournaldWriter()
			output = OutputJournald
		} else {
			writer = os.Stderr
			output = OutputStderr
		}
	default:
		writer = os.Stderr
		output = OutputStderr
	}

	return NewWithWriter(writer, output, cfg)
}

// NewWithWriter creates a Logger writing to w. Used by New and by tests.
func NewWithWriter(w io.Writer, output LogOutput, cfg Config) *Logger {
	logger := log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(cfg.Level),
		Prefix:          cfg.Prefix,
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	return &Logger{
		Logger: logger,
		output: output,
	}
}

// NewDefault creates a new Logger with default configuration
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Output returns the current output destination
func (l *Logger) Output() LogOutput {
	return l.output
}

// With returns a child Logger carrying the given key/value pairs on every line
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(keyvals...),
		output: l.output,
	}
}

// journaldWriter implements io.Writer for journald
type journaldWriter struct {
	identifier string
}

// newJournaldWriter creates a writer that sends output to journald
func newJournaldWriter() *journaldWriter {
	return &journaldWriter{
		identifier: "kbuild",
	}
}

// Write implements io.Writer for journald
// It uses systemd-cat to send messages to journald
func (w *journaldWriter) Write(p []byte) (n int, err error) {
	cmd := exec.Command("systemd-cat", "-t", w.identifier)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		// Fallback to stderr if journald write fails
		return os.Stderr.Write(p)
	}

	if err := cmd.Start(); err != nil {
		return os.Stderr.Write(p)
	}

	n, err = stdin.Write(p)
	stdin.Close()

	// The message was handed over even if systemd-cat exits badly
	_ = cmd.Wait()

	return n, err
}
