// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Level is a logging severity level.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
)

// Logger is the interface for producing log messages for/from a particular source.
type Logger interface {
	// Debug formats and emits a debug message.
	Debug(format string, args ...interface{})
	// Info formats and emits an informational message.
	Info(format string, args ...interface{})
	// Warn formats and emits a warning message.
	Warn(format string, args ...interface{})
	// Error formats and emits an error message.
	Error(format string, args ...interface{})
	// Fatal formats and emits an error message and exits.
	Fatal(format string, args ...interface{})

	// DebugBlock formats and emits a multiline debug message.
	DebugBlock(prefix string, format string, args ...interface{})

	// DebugEnabled checks if debug messages are enabled for this Logger.
	DebugEnabled() bool
	// EnableDebug enables or disables debug messages for this Logger.
	EnableDebug(bool) bool
	// Source returns the source name of this Logger.
	Source() string
	// SlogHandler returns a log/slog handler emitting through this Logger.
	SlogHandler() slog.Handler
}

// logger implements Logger for a single source.
type logger struct {
	source string
}

// logging is the shared state of all Loggers.
type logging struct {
	sync.RWMutex
	level   Level
	prefix  bool
	dbgmap  srcmap
	sources map[string]struct{}
}

var (
	log = &logging{
		level:   DefaultLevel,
		dbgmap:  make(srcmap),
		sources: make(map[string]struct{}),
	}
	deflog = log.get("default")
)

// Default returns the default Logger.
func Default() Logger {
	return deflog
}

// Get returns the Logger for the given source.
func Get(source string) Logger {
	return log.get(source)
}

// NewLogger is an alias for Get.
func NewLogger(source string) Logger {
	return log.get(source)
}

// EnableDebug enables debug messages for the given source.
func EnableDebug(source string) bool {
	return log.enableDebug(source, true)
}

// SetLevel sets the lowest severity for which messages are emitted.
func SetLevel(level Level) Level {
	log.Lock()
	defer log.Unlock()
	old := log.level
	log.level = level
	return old
}

func (l *logging) get(source string) logger {
	l.Lock()
	defer l.Unlock()
	l.sources[source] = struct{}{}
	return logger{source: source}
}

// setDbgMap replaces the source debug map. Callers hold the lock.
func (l *logging) setDbgMap(m srcmap) {
	l.dbgmap = m
}

// setPrefix enables or disables source prefixes. Callers hold the lock.
func (l *logging) setPrefix(prefix bool) {
	l.prefix = prefix
}

func (l *logging) enableDebug(source string, state bool) bool {
	l.Lock()
	defer l.Unlock()
	old := l.dbgmap[source]
	l.dbgmap[source] = state
	return old
}

func (l *logging) debugEnabled(source string) bool {
	l.RLock()
	defer l.RUnlock()
	if state, ok := l.dbgmap[source]; ok {
		return state
	}
	if state, ok := l.dbgmap["*"]; ok {
		return state
	}
	return l.level <= LevelDebug
}

func (l *logging) passes(level Level) bool {
	l.RLock()
	defer l.RUnlock()
	return l.level <= level
}

func (l *logging) usePrefix() bool {
	l.RLock()
	defer l.RUnlock()
	return l.prefix
}

func (l logger) format(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if log.usePrefix() {
		return "[" + l.source + "] " + msg
	}
	return msg
}

func (l logger) Debug(format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	klog.InfoDepth(1, "D: "+l.format(format, args...))
}

func (l logger) Info(format string, args ...interface{}) {
	if !log.passes(LevelInfo) {
		return
	}
	klog.InfoDepth(1, l.format(format, args...))
}

func (l logger) Warn(format string, args ...interface{}) {
	if !log.passes(LevelWarn) {
		return
	}
	klog.WarningDepth(1, l.format(format, args...))
}

func (l logger) Error(format string, args ...interface{}) {
	klog.ErrorDepth(1, l.format(format, args...))
}

func (l logger) Fatal(format string, args ...interface{}) {
	klog.FatalDepth(1, l.format(format, args...))
}

func (l logger) DebugBlock(prefix string, format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		klog.InfoDepth(1, "D: "+l.format("%s%s", prefix, line))
	}
}

func (l logger) DebugEnabled() bool {
	return log.debugEnabled(l.source)
}

func (l logger) EnableDebug(state bool) bool {
	return log.enableDebug(l.source, state)
}

func (l logger) Source() string {
	return l.source
}

// loggerError returns a package-specific formatted error.
func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("logger: "+format, args...)
}
