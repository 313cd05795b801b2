package browser

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// logRecorder collects page output from backend event listeners, which run
// on their own goroutines.
type logRecorder struct {
	mutex   sync.Mutex
	entries []LogEntry
	logger  *zap.Logger
}

func newLogRecorder(logger *zap.Logger) *logRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logRecorder{logger: logger}
}

func (recorder *logRecorder) consoleError(parts ...string) {
	recorder.add(LogKindConsoleError, strings.TrimSpace(strings.Join(parts, " ")))
}

func (recorder *logRecorder) exception(text string) {
	recorder.add(LogKindUncaughtException, strings.TrimSpace(text))
}

func (recorder *logRecorder) add(kind LogKind, text string) {
	if text == "" {
		return
	}
	recorder.mutex.Lock()
	recorder.entries = append(recorder.entries, LogEntry{Kind: kind, Text: text, At: time.Now().UTC()})
	recorder.mutex.Unlock()
	recorder.logger.Debug("page_log", zap.String("kind", string(kind)), zap.String("text", text))
}

func (recorder *logRecorder) snapshot() []LogEntry {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	entries := make([]LogEntry, len(recorder.entries))
	copy(entries, recorder.entries)
	return entries
}
