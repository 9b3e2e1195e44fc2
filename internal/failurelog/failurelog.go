// Package failurelog appends one JSON line per failed work item so operators
// can see what did not make it through a run and why.
package failurelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/job-harvester/internal/domain"
)

// Log writes failure entries. The zero value is not usable; use Open or Nop.
type Log struct {
	logger *zap.Logger
	file   *os.File
}

// Open appends to the file at path, creating it and its directory if needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create failure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}
	l := New(zapcore.AddSync(f))
	l.file = f
	return l, nil
}

// New writes JSON lines to w.
func New(w zapcore.WriteSyncer) *Log {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.MessageKey = "event"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, zapcore.InfoLevel)
	return &Log{logger: zap.New(core)}
}

// Nop discards every entry.
func Nop() *Log {
	return &Log{logger: zap.NewNop()}
}

// Record appends an entry for item. attempts is the number of fetch attempts
// made in this run.
func (l *Log) Record(item domain.WorkItem, err error, attempts int) {
	l.logger.Info("item_failed",
		zap.String("url", item.URL),
		zap.String("id", item.ID()),
		zap.String("error", err.Error()),
		zap.Int("attempts", attempts),
		zap.Bool("permanent", errors.Is(err, domain.ErrPermanentFetch)),
		zap.Int("previous_failures", item.Failures),
	)
}

// Close flushes and closes the underlying file, if any.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
