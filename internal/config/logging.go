package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/pion/logging"
)

var levels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// ParseLevel maps a level name to a pion log level.
func ParseLevel(s string) (logging.LogLevel, error) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// LoggerFactory builds the scoped logger factory. Logs go to w, never to
// the host line protocol stream.
func (c LogConfig) LoggerFactory(w io.Writer) (*logging.DefaultLoggerFactory, error) {
	level := c.Level
	if level == "" {
		level = DefaultLogLevel
	}
	def, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	f := &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: def,
		ScopeLevels:     make(map[string]logging.LogLevel, len(c.Scopes)),
	}
	for scope, name := range c.Scopes {
		lvl, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, err)
		}
		f.ScopeLevels[scope] = lvl
	}
	return f, nil
}
