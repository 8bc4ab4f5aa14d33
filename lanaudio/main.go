package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/companyzero/lanaudio/internal/version"
)

func realMain() error {
	// Settings.
	cfg, err := loadSettings(os.Args[1:], os.Stderr)
	if errors.Is(err, errEarlyExit) {
		return nil
	}
	if err != nil {
		return err
	}

	// Log.
	if cfg.Command == cmdLsdev {
		// Listing devices only writes to stdout.
		cfg.LogFile = ""
	}
	logBackend, err := newLogBackend(cfg)
	if err != nil {
		return err
	}
	defer logBackend.Close()
	log := logBackend.logger(subsysMain)
	log.Debugf("Running %s version %s", appName, version.String())

	// Main context.
	errMainCtxCanceled := errors.New("main context canceled")
	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, mainCancel := context.WithCancelCause(context.Background())
	go func() {
		<-sigCtx.Done()
		log.Infof("Interrupt detected. Shutting down.")
		mainCancel(errMainCtxCanceled)
	}()

	switch cfg.Command {
	case cmdBroadcast:
		err = runBroadcast(ctx, cfg, logBackend)
	case cmdListen:
		err = runListen(ctx, cfg, logBackend)
	case cmdLsdev:
		err = runLsdev(cfg, logBackend)
	default:
		err = fmt.Errorf("unknown command %q", cfg.Command)
	}
	if errors.Is(err, context.Canceled) && context.Cause(ctx) == errMainCtxCanceled {
		// Ignore graceful shutdown error.
		return nil
	}
	return err
}

func main() {
	err := realMain()
	if err != nil {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
}
