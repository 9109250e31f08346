package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes log messages as JSON lines through a logrus.Logger. It is
// the default sink, writing to os.Stderr.
type LogrusSink struct {
	log *logrus.Logger
}

var _ LogSink = &LogrusSink{}

// NewLogrusSink will create a new LogrusSink that writes to the provided
// io.Writer.
func NewLogrusSink(out io.Writer) *LogrusSink {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.JSONFormatter{})

	return &LogrusSink{log: l}
}

// WrapLogrus adapts an existing logrus.Logger.
func WrapLogrus(l *logrus.Logger) *LogrusSink {
	return &LogrusSink{log: l}
}

// Info logs msg at logrus' info level for level 0 and at debug level above
// that.
func (s *LogrusSink) Info(level int, msg string, keysAndValues ...interface{}) {
	entry := s.log.WithFields(fields(keysAndValues))
	if level <= 0 {
		entry.Info(msg)
		return
	}
	entry.Debug(msg)
}

// Error logs msg with err attached.
func (s *LogrusSink) Error(err error, msg string, keysAndValues ...interface{}) {
	s.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
