// Package logger provides the component and level gated logger used by the
// server and cluster packages.
package logger

import (
	"os"
	"strings"
)

const (
	logSinkPathEnvVar = "MONGODB_LOG_PATH"
	logSinkPathStdout = "stdout"
	logSinkPathStderr = "stderr"
)

// LogSink represents a logging implementation, this interface should be 1-1
// with the exported "LogSink" interface in the server package.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs. The
	// level argument is provided for optional logging.
	Info(level int, msg string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, msg string, keysAndValues ...interface{})
}

// Logger represents the configuration for the internal logger.
type Logger struct {
	ComponentLevels map[Component]Level // Log levels for each component.
	Sink            LogSink             // LogSink for log printing.
}

// New will construct a new logger. If any of the given options are the
// zero-value of the argument type, then the constructor will attempt to
// source the data from the environment. If the environment has not been set,
// then the constructor will set the respective default values.
func New(sink LogSink, componentLevels map[Component]Level) *Logger {
	return &Logger{
		ComponentLevels: selectComponentLevels(componentLevels),
		Sink:            selectLogSink(sink),
	}
}

// LevelComponentEnabled will return true if the given LogLevel is enabled for
// the given LogComponent. A nil logger is never enabled.
func (logger *Logger) LevelComponentEnabled(level Level, component Component) bool {
	if logger == nil {
		return false
	}

	if component == ComponentAll {
		for _, l := range logger.ComponentLevels {
			if l >= level {
				return true
			}
		}
		return false
	}

	return logger.ComponentLevels[component] >= level
}

// Print will synchronously print the given message to the configured LogSink.
// If the LogSink is nil, then this method will do nothing.
func (logger *Logger) Print(level Level, component Component, msg string, keysAndValues ...interface{}) {
	if logger == nil || logger.Sink == nil {
		return
	}

	if !logger.LevelComponentEnabled(level, component) {
		return
	}

	logger.Sink.Info(int(level)-DiffToInfo, msg, keysAndValues...)
}

// Error logs an error, with the given message and key/value pairs. Errors are
// reported whenever the component is enabled at any level.
func (logger *Logger) Error(component Component, err error, msg string, keysAndValues ...interface{}) {
	if logger == nil || logger.Sink == nil {
		return
	}

	if !logger.LevelComponentEnabled(LevelInfo, component) {
		return
	}

	logger.Sink.Error(err, msg, keysAndValues...)
}

// selectLogSink will return the LogSink to use. The sink argument takes
// precedence, then MONGODB_LOG_PATH, then a logrus sink on os.Stderr.
func selectLogSink(sink LogSink) LogSink {
	if sink != nil {
		return sink
	}

	path := os.Getenv(logSinkPathEnvVar)
	lowerPath := strings.ToLower(path)

	if lowerPath == logSinkPathStdout {
		return NewLogrusSink(os.Stdout)
	}

	if lowerPath == logSinkPathStderr || path == "" {
		return NewLogrusSink(os.Stderr)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return NewLogrusSink(os.Stderr)
	}

	return NewLogrusSink(f)
}

// selectComponentLevels returns a new map of LogComponents to LogLevels that
// is the result of merging the user-defined data with the environment, with
// the user-defined data taking priority.
func selectComponentLevels(componentLevels map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)

	// Determine if the "MONGODB_LOG_ALL" environment variable is set.
	var globalEnvLevel *Level
	if all := os.Getenv(mongoDBLogAllEnvVar); all != "" {
		level := parseLevel(all)
		globalEnvLevel = &level
	}

	for envVar, component := range componentEnvVarMap {
		if component == ComponentAll {
			continue
		}

		// If the component already has a level, then skip it.
		if _, ok := componentLevels[component]; ok {
			selected[component] = componentLevels[component]

			continue
		}

		// If the "MONGODB_LOG_ALL" environment variable is set, then set the
		// level for the component to the value of the environment variable.
		if globalEnvLevel != nil {
			selected[component] = *globalEnvLevel

			continue
		}

		// Otherwise, set the level for the component to the value of the
		// environment variable.
		selected[component] = parseLevel(os.Getenv(envVar))
	}

	if all, ok := componentLevels[ComponentAll]; ok {
		for component := range selected {
			if _, set := componentLevels[component]; !set {
				selected[component] = all
			}
		}
	}

	return selected
}
