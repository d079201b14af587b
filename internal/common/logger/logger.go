package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger writes one JSON object per line: timestamp, level, service, action,
// message, hostname, request_id and any extra fields.
type Logger struct{ entry *logrus.Entry }

func New(service string) *Logger { return NewWithOutput(service, os.Stdout) }

func NewWithOutput(service string, w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return &Logger{entry: l.WithFields(logrus.Fields{
		"service":    service,
		"hostname":   hostname(),
		"request_id": "",
	})}
}

// Discard is a logger for tests.
func Discard() *Logger { return NewWithOutput("test", io.Discard) }

func (l *Logger) WithRequest(id string) *Logger {
	return &Logger{entry: l.entry.WithField("request_id", id)}
}

func (l *Logger) with(action string, fields map[string]any) *logrus.Entry {
	e := l.entry.WithField("action", action)
	if fields != nil {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

func (l *Logger) Info(action string, fields map[string]any)  { l.with(action, fields).Info(action) }
func (l *Logger) Debug(action string, fields map[string]any) { l.with(action, fields).Debug(action) }
func (l *Logger) Warn(action string, fields map[string]any)  { l.with(action, fields).Warn(action) }

func (l *Logger) Error(action string, err error, fields map[string]any) {
	e := l.with(action, fields)
	if err != nil {
		e = e.WithField("error", map[string]any{"msg": err.Error(), "stack": fmt.Sprintf("%T", err)})
	}
	e.Error(action)
}

func hostname() string { h, _ := os.Hostname(); return h }
