// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup points logrus at stderr with the given level and format ("text" or
// "json"). stdout is left to command output.
func Setup(level, format string) error {
	return setup(os.Stderr, level, format)
}

func setup(out io.Writer, level, format string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var formatter logrus.Formatter
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("log format %q: want text or json", format)
	}

	logrus.SetOutput(out)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(formatter)
	return nil
}
