package server

import "github.com/ikmak/mongo-topology/internal/logger"

// LogSink is an interface that can be implemented to provide a custom sink
// for the logs.
type LogSink = logger.LogSink

// LogComponent is an enumeration representing the components which can be
// logged against.
type LogComponent = logger.Component

// LogLevel is an enumeration representing the supported log severity levels.
type LogLevel = logger.Level

const (
	LogComponentAll             = logger.ComponentAll
	LogComponentTopology        = logger.ComponentTopology
	LogComponentServerSelection = logger.ComponentServerSelection
	LogComponentConnection      = logger.ComponentConnection

	LogLevelOff   = logger.LevelOff
	LogLevelInfo  = logger.LevelInfo
	LogLevelDebug = logger.LevelDebug
)

// WithLogSink configures logging to sink. A nil sink logs JSON lines to
// os.Stderr. Components missing from levels fall back to the MONGODB_LOG_*
// environment variables.
func WithLogSink(sink LogSink, levels map[LogComponent]LogLevel) Option {
	return WithLogger(logger.New(sink, levels))
}

func (s *Server) logKV(kv ...interface{}) []interface{} {
	return append([]interface{}{
		logger.KeyTopologyID, s.cfg.topologyID.String(),
		logger.KeyServerHost, s.address.Host,
		logger.KeyServerPort, int(s.address.Port),
	}, kv...)
}
