package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/juju/loggo/v2"
)

const rootModule = "multisig"

// -----------------------------------------------------------------------------

// Logger provides named, levelled logging for one component.
type Logger struct {
	name   string
	logger loggo.Logger
	config interface{}
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(config interface{}, name string) *Logger {
	l := &Logger{
		name:   name,
		logger: loggo.GetLogger(rootModule + "." + moduleName(name)),
		config: config,
	}
	return l
}

// -----------------------------------------------------------------------------

// Configure applies a level such as "DEBUG" or "WARNING" to every component logger.
func Configure(level string) error {
	if level == "" {
		level = "INFO"
	}
	if _, ok := loggo.ParseLevel(level); !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	return loggo.ConfigureLoggers(fmt.Sprintf("%s=%s", rootModule, strings.ToUpper(level)))
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Debugf("[%s] %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.logger.Warningf("[%s] %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Infof("[%s] %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Errorf("[%s] %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.Criticalf("[%s] %s", l.name, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// -----------------------------------------------------------------------------

// moduleName turns a component name like "MultisigSource-treasury" into a
// loggo module segment.
func moduleName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "app"
	}
	return strings.NewReplacer(".", "_", " ", "_").Replace(name)
}
