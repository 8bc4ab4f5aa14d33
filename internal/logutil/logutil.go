// Package logutil holds helpers shared by the loggers of broadcasters and
// listeners.
package logutil

import (
	"strings"

	"github.com/decred/slog"
)

// prefixLogger tags every message of the wrapped logger. Level handling is
// done by the embedded logger.
type prefixLogger struct {
	slog.Logger
	prefix string
}

func (p *prefixLogger) Tracef(format string, params ...interface{}) {
	p.Logger.Tracef(p.prefix+format, params...)
}

func (p *prefixLogger) Debugf(format string, params ...interface{}) {
	p.Logger.Debugf(p.prefix+format, params...)
}

func (p *prefixLogger) Infof(format string, params ...interface{}) {
	p.Logger.Infof(p.prefix+format, params...)
}

func (p *prefixLogger) Warnf(format string, params ...interface{}) {
	p.Logger.Warnf(p.prefix+format, params...)
}

func (p *prefixLogger) Errorf(format string, params ...interface{}) {
	p.Logger.Errorf(p.prefix+format, params...)
}

func (p *prefixLogger) Criticalf(format string, params ...interface{}) {
	p.Logger.Criticalf(p.prefix+format, params...)
}

func (p *prefixLogger) args(v []interface{}) []interface{} {
	return append([]interface{}{strings.TrimSuffix(p.prefix, " ")}, v...)
}

func (p *prefixLogger) Trace(v ...interface{})    { p.Logger.Trace(p.args(v)...) }
func (p *prefixLogger) Debug(v ...interface{})    { p.Logger.Debug(p.args(v)...) }
func (p *prefixLogger) Info(v ...interface{})     { p.Logger.Info(p.args(v)...) }
func (p *prefixLogger) Warn(v ...interface{})     { p.Logger.Warn(p.args(v)...) }
func (p *prefixLogger) Error(v ...interface{})    { p.Logger.Error(p.args(v)...) }
func (p *prefixLogger) Critical(v ...interface{}) { p.Logger.Critical(p.args(v)...) }

// PrefixLogger returns a logger that prepends "prefix: " to every message.
func PrefixLogger(log slog.Logger, prefix string) slog.Logger {
	if log == nil {
		log = slog.Disabled
	}
	return &prefixLogger{Logger: log, prefix: prefix + ": "}
}

// BackoffLogger logs a sequence of repeated failures: the first failure and
// every failure after that whose count is a power of two are logged at warn
// level, the rest at debug level.
type BackoffLogger struct {
	log slog.Logger
}

// NewBackoffLogger returns a BackoffLogger that writes to log.
func NewBackoffLogger(log slog.Logger) BackoffLogger {
	return BackoffLogger{log: log}
}

// Failure logs the failure with the given sequence count (starting at 1).
func (b BackoffLogger) Failure(count uint64, format string, params ...interface{}) {
	if count&(count-1) == 0 {
		b.log.Warnf(format+" (failure #%d)", append(params, count)...)
		return
	}
	b.log.Debugf(format+" (failure #%d)", append(params, count)...)
}

// Recovered logs that a sequence of failures has ended.
func (b BackoffLogger) Recovered(failures uint64, format string, params ...interface{}) {
	if failures == 0 {
		return
	}
	b.log.Infof(format+" after %d failures", append(params, failures)...)
}
