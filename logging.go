package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = newAppLogger()

// appLogger keeps the key/value call shape used across the codebase
// (logger.Info(msg, "k", v, ...)) on top of a zap core that can be swapped
// once the config is known.
type appLogger struct {
	level zap.AtomicLevel

	mu      sync.RWMutex
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	closers []io.Closer

	stopOnce sync.Once
}

func newAppLogger() *appLogger {
	l := &appLogger{level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
	l.install(zapcore.NewCore(newLogEncoder("console"), zapcore.Lock(os.Stderr), l.level), nil)
	return l
}

func newLogEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339Nano))
	}
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func (l *appLogger) install(core zapcore.Core, closers []io.Closer) {
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	l.mu.Lock()
	prevBase, prevClosers := l.base, l.closers
	l.base = base
	l.sugar = base.Sugar()
	l.closers = closers
	l.mu.Unlock()
	if prevBase != nil {
		_ = prevBase.Sync()
	}
	for _, c := range prevClosers {
		_ = c.Close()
	}
}

func (l *appLogger) get() *zap.SugaredLogger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sugar
}

// zap exposes the underlying logger for libraries that take a *zap.Logger.
func (l *appLogger) zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base.WithOptions(zap.AddCallerSkip(-1))
}

func (l *appLogger) Debug(msg string, attrs ...any) {
	l.get().Debugw(msg, attrs...)
}

func (l *appLogger) Info(msg string, attrs ...any) {
	l.get().Infow(msg, attrs...)
}

func (l *appLogger) Warn(msg string, attrs ...any) {
	l.get().Warnw(msg, attrs...)
}

func (l *appLogger) Error(msg string, attrs ...any) {
	l.get().Errorw(msg, attrs...)
}

func (l *appLogger) setDebug(debug bool) {
	if debug {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

// configure routes output to path (when set) and optionally mirrors it to
// stdout. With no path, stdout is always used.
func (l *appLogger) configure(path string, stdout bool, format string) error {
	var (
		syncers []zapcore.WriteSyncer
		closers []io.Closer
	)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
		}
		w := newRollingFileWriter(path)
		syncers = append(syncers, w)
		closers = append(closers, w)
	}
	if stdout || path == "" {
		syncers = append(syncers, zapcore.Lock(os.Stdout))
	}
	l.install(zapcore.NewCore(newLogEncoder(format), zapcore.NewMultiWriteSyncer(syncers...), l.level), closers)
	return nil
}

func (l *appLogger) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		_ = l.base.Sync()
		for _, c := range l.closers {
			_ = c.Close()
		}
		l.closers = nil
	})
}

// rollingFileWriter reopens its file when it disappears, so external log
// rotation (move + signal-free) keeps working.
type rollingFileWriter struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

func newRollingFileWriter(path string) *rollingFileWriter {
	return &rollingFileWriter{path: path}
}

func (w *rollingFileWriter) ensureFile() error {
	if w.path == "" {
		return nil
	}
	if _, err := os.Stat(w.path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if w.f != nil {
			_ = w.f.Close()
			w.f = nil
		}
	}
	if w.f == nil {
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w.f = f
	}
	return nil
}

func (w *rollingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFile(); err != nil {
		return 0, err
	}
	if w.f == nil {
		return len(p), nil
	}
	return w.f.Write(p)
}

func (w *rollingFileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *rollingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func fatal(msg string, err error, attrs ...any) {
	attrPairs := append(attrs, "error", err)
	logger.Error(msg, attrPairs...)
	logger.Stop()
	os.Exit(1)
}
