package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Per-category loggers. Before Setup is called they fall back to slog's
// default handler so early bootstrap code can log without ordering concerns.
var (
	mu      sync.RWMutex
	app     = slog.Default()
	cache   = slog.Default()
	gateway = slog.Default()
	logFile *lumberjack.Logger
)

// Setup configures the package loggers to write to stdout and a rotating
// file under dir. It is safe to call once at process start; calling it
// again replaces the previous configuration.
func Setup(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "gatewaycache.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, rotator), nil)
	root := slog.New(handler)

	mu.Lock()
	logFile = rotator
	app = root.With("component", "app")
	cache = root.With("component", "cache")
	gateway = root.With("component", "gateway")
	mu.Unlock()

	return nil
}

// Application returns the logger for process lifecycle messages.
func Application() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return app
}

// Cache returns the logger used by the cache engine.
func Cache() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return cache
}

// Gateway returns the logger for gateway event traffic.
func Gateway() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return gateway
}

// Sync releases the rotating file handle. Call on shutdown.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
