package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Subsystem tags.
const (
	subsysMain      = "MAIN"
	subsysCapture   = "CAPT"
	subsysPlayback  = "PLAY"
	subsysSender    = "SEND"
	subsysReceiver  = "RECV"
	subsysDiscovery = "DISC"
)

type logBackend struct {
	stdOut     io.Writer
	logRotator *rotator.Rotator
	bknd       *slog.Backend
	level      slog.Level
}

func (bknd *logBackend) Write(b []byte) (int, error) {
	if bknd.stdOut != nil {
		bknd.stdOut.Write(b)
	}
	if bknd.logRotator != nil {
		bknd.logRotator.Write(b)
	}

	return len(b), nil
}

// logger returns a logger for the subsystem.
func (bknd *logBackend) logger(subsys string) slog.Logger {
	log := bknd.bknd.Logger(subsys)
	log.SetLevel(bknd.level)
	return log
}

func (bknd *logBackend) Close() error {
	if bknd.logRotator != nil {
		return bknd.logRotator.Close()
	}
	return nil
}

func newLogBackend(cfg *settings) (*logBackend, error) {
	level, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.DebugLevel)
	}

	lb := &logBackend{
		stdOut: os.Stdout,
		level:  level,
	}
	if cfg.LogFile != "" {
		logDir := filepath.Dir(cfg.LogFile)
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logRotator, err := rotator.New(cfg.LogFile, 1024, false, cfg.MaxLogFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
		lb.logRotator = logRotator
	}
	lb.bknd = slog.NewBackend(lb)
	return lb, nil
}
