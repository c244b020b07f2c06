package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) error {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		return fmt.Errorf("bad log level %q", level)
	}
	return nil
}

// ParseSize parses a "WIDTHxHEIGHT" string such as "1280x720".
func ParseSize(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size %q, expected WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}

// HTTPLogger adapts Log to retryablehttp's leveled logger. Per-attempt
// chatter goes to debug, retry failures to warn.
type HTTPLogger struct {
	L *logrus.Logger
}

func (h HTTPLogger) entry(kv []interface{}) *logrus.Entry {
	l := h.L
	if l == nil {
		l = Log
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.WithFields(fields)
}

func (h HTTPLogger) Error(msg string, kv ...interface{}) { h.entry(kv).Warn(msg) }
func (h HTTPLogger) Warn(msg string, kv ...interface{})  { h.entry(kv).Warn(msg) }
func (h HTTPLogger) Info(msg string, kv ...interface{})  { h.entry(kv).Debug(msg) }
func (h HTTPLogger) Debug(msg string, kv ...interface{}) { h.entry(kv).Debug(msg) }
