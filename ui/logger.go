package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
)

// Logger writes log lines into the console's log pane. It is a logrus
// hook, so the process logger can be redirected to it while the console runs.
type Logger struct {
	textView *tview.TextView
	Level    logrus.Level
}

var _ logrus.Hook = (*Logger)(nil)

// NewLogger creates a new logger instance
func NewLogger(textView *tview.TextView) *Logger {
	return &Logger{
		Level:    logrus.InfoLevel,
		textView: textView,
	}
}

func (l *Logger) Levels() []logrus.Level {
	var levels []logrus.Level
	for _, lvl := range logrus.AllLevels {
		if lvl <= l.Level {
			levels = append(levels, lvl)
		}
	}
	return levels
}

func (l *Logger) Fire(entry *logrus.Entry) error {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "component" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var fields strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&fields, " %s=%v", k, entry.Data[k])
	}
	l.write(entry.Level, entry.Time.Format("15:04:05"), entry.Message+fields.String())
	return nil
}

func (l *Logger) write(level logrus.Level, timestamp, msg string) {
	color := "white"
	switch {
	case level <= logrus.ErrorLevel:
		color = "red"
	case level == logrus.WarnLevel:
		color = "yellow"
	case level >= logrus.DebugLevel:
		color = "blue"
	}
	name := level.String()
	name = strings.ToUpper(name[:1]) + name[1:]
	fmt.Fprintf(l.textView, "[%s]%s: [%s] %s\n", color, name, timestamp, tview.Escape(msg))
	l.textView.ScrollToEnd()
}

func timeNow() string {
	return time.Now().Format("15:04:05")
}

// Errorf adds an error log entry to the log view
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.write(logrus.ErrorLevel, timeNow(), fmt.Sprintf(format, args...))
}

// Clear clears all log entries
func (l *Logger) Clear() {
	l.textView.SetText("")
}
