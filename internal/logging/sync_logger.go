package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SyncLogger manages logging for a single sync run: a structured console
// logger plus a per-run log file under sync_logs/ that keeps the full
// transcript (per-comment outcomes, API failures, the final report).
type SyncLogger struct {
	runID     string
	console   zerolog.Logger
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

// NewSyncLogger initializes logging for a new sync run. The file transcript
// is best-effort: when the log directory cannot be created the run continues
// with console output only.
func NewSyncLogger(verbose bool) *SyncLogger {
	runID := uuid.NewString()[:8]

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Str("run_id", runID).
		Logger()

	logger := &SyncLogger{
		runID:     runID,
		console:   console,
		startTime: time.Now(),
	}

	logPath := filepath.Join("sync_logs", fmt.Sprintf("sync_%s_%s.log", runID, time.Now().Format("20060102_150405")))
	if err := os.MkdirAll("sync_logs", 0755); err == nil {
		if f, err := os.Create(logPath); err == nil {
			logger.logFile = f
			logger.writeHeader()
		}
	}
	if logger.logFile == nil {
		console.Debug().Msg("could not create run log file, continuing with console only")
	}

	return logger
}

// RunID returns the identifier of this sync run
func (l *SyncLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Log writes an info-level message to the console and the run transcript
func (l *SyncLogger) Log(format string, args ...interface{}) {
	if l == nil {
		return
	}
	message := fmt.Sprintf(format, args...)
	l.console.Info().Msg(message)
	l.appendToFile(message)
}

// Debug writes a debug-level message, visible with --verbose
func (l *SyncLogger) Debug(format string, args ...interface{}) {
	if l == nil {
		return
	}
	message := fmt.Sprintf(format, args...)
	l.console.Debug().Msg(message)
	l.appendToFile(message)
}

// LogError writes an error with the context it occurred in
func (l *SyncLogger) LogError(context string, err error) {
	if l == nil {
		return
	}
	l.console.Error().Err(err).Msg(context)
	l.appendToFile(fmt.Sprintf("ERROR in %s: %v", context, err))
}

// LogOutcome records the result of dispatching one review comment
func (l *SyncLogger) LogOutcome(file string, line int, outcome string) {
	if l == nil {
		return
	}
	l.console.Info().
		Str("file", file).
		Int("line", line).
		Str("outcome", outcome).
		Msg("comment dispatched")
	l.appendToFile(fmt.Sprintf("OUTCOME %s:%d -> %s", file, line, outcome))
}

// Close finalizes the run transcript
func (l *SyncLogger) Close() {
	if l == nil {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.logFile != nil {
		fmt.Fprintf(l.logFile, "[+%v] sync run completed\n", time.Since(l.startTime).Round(time.Millisecond))
		l.logFile.Close()
		l.logFile = nil
	}
}

func (l *SyncLogger) appendToFile(message string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.logFile == nil {
		return
	}

	elapsed := time.Since(l.startTime).Round(time.Millisecond)
	fmt.Fprintf(l.logFile, "[%s] [+%v] %s\n", time.Now().Format("15:04:05.000"), elapsed, message)
}

func (l *SyncLogger) writeHeader() {
	fmt.Fprintf(l.logFile, "REVIEWSYNC RUN LOG\nRun ID: %s\nStart Time: %s\n\n",
		l.runID, l.startTime.Format("2006-01-02 15:04:05"))
}
