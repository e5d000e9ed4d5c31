package logger

import (
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

type Venue int

const (
	None = iota
	Swap
	Lend
	Stake
)

var venueNameMap = map[string]Venue{
	"mockswap":  Swap,
	"mocklend":  Lend,
	"mockstake": Stake,
}

var venuePrefixes = map[Venue]string{
	None:  "",
	Swap:  "[SWAP]  ",
	Lend:  "[LEND]  ",
	Stake: "[STAKE] ",
}

var colors = map[Venue]color.Attribute{
	None:  color.FgWhite,
	Swap:  color.FgHiGreen,
	Lend:  color.FgYellow,
	Stake: color.FgMagenta,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithVenue(venue string, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithVenue(venue string, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithVenue(venue string, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithVenue(venue string, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                      {}
func (l *EmptyLogger) InfoWithVenue(_ string, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) ErrorWithVenue(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                     {}
func (l *EmptyLogger) DebugWithVenue(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) NoticeWithVenue(_ string, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// lookupVenue maps a venue name to its log designation. Unknown venues get
// the plain prefix so third-party venues still tag their lines.
func lookupVenue(name string) (Venue, string) {
	if v, ok := venueNameMap[strings.ToLower(name)]; ok {
		return v, venuePrefixes[v]
	}
	if name == "" {
		return None, ""
	}
	return None, "[" + strings.ToUpper(name) + "] "
}

// formatMessage formats the log message with the appropriate log level, venue prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, venue string, format string) string {
	v, venuePrefix := lookupVenue(venue)
	if l.enableColoring {
		venuePrefix = color.New(colors[v]).Sprint(venuePrefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + venuePrefix + format
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= InfoLevel {
		log.Printf(l.formatMessage(InfoLevel, "", format), args...)
	}
}

func (l *StdLogger) InfoWithVenue(venue string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level <= InfoLevel {
		log.Printf(l.formatMessage(InfoLevel, venue, format), args...)
	}
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= ErrorLevel {
		log.Printf(l.formatMessage(ErrorLevel, "", format), args...)
	}
}

func (l *StdLogger) ErrorWithVenue(venue string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level <= ErrorLevel {
		log.Printf(l.formatMessage(ErrorLevel, venue, format), args...)
	}
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= DebugLevel {
		log.Printf(l.formatMessage(DebugLevel, "", format), args...)
	}
}

func (l *StdLogger) DebugWithVenue(venue string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level <= DebugLevel {
		log.Printf(l.formatMessage(DebugLevel, venue, format), args...)
	}
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= NoticeLevel {
		log.Printf(l.formatMessage(NoticeLevel, "", format), args...)
	}
}

func (l *StdLogger) NoticeWithVenue(venue string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level <= NoticeLevel {
		log.Printf(l.formatMessage(NoticeLevel, venue, format), args...)
	}
}
