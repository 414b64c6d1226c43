package iec_server

import (
	"github.com/sirupsen/logrus"
	"github.com/thinkgos/go-iecp5/clog"
)

// logProvider routes the library's internal log lines to logrus.
type logProvider struct {
	log logrus.FieldLogger
}

var _ clog.LogProvider = logProvider{}

func (l logProvider) Critical(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

func (l logProvider) Error(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

func (l logProvider) Warn(format string, v ...interface{}) {
	l.log.Warnf(format, v...)
}

func (l logProvider) Debug(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}
