package framework

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Field names used in structured log output.
const (
	DeviceIDLogField = "deviceId"
	ProtocolLogField = "protocol"
	StageLogField    = "stage"
)

// InitLogger sets up the standard logrus logger used for run progress output.
func InitLogger(level logrus.Level, out io.Writer) {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)
	if out != nil {
		logrus.SetOutput(out)
	}
	logrus.SetLevel(level)
}

// DefaultLogger returns an entry for the standard logrus logger.
func DefaultLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ParseLogLevel is logrus.ParseLevel, except that an empty string means info.
func ParseLogLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(s)
}

type debugLogger struct {
	entry *logrus.Entry
}

// AsDebugLogger adapts a logrus entry to Logger, writing everything at debug level.
func AsDebugLogger(entry *logrus.Entry) Logger {
	return debugLogger{entry}
}

func (d debugLogger) Println(args ...interface{}) { d.entry.Debugln(args...) }

func (d debugLogger) Printf(message string, args ...interface{}) { d.entry.Debugf(message, args...) }
