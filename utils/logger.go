package utils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter routes log lines to testing.T.Log, so output only shows
// for failed tests.
type testLoggerAdapter struct {
	t testing.TB
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logger entry that writes to t.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = level
	return logrus.NewEntry(logger)
}
