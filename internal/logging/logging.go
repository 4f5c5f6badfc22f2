package logging

import (
	"os"
	"strings"

	"github.com/op/go-logging"
)

const format = "%{level:.1s}%{time:0102 15:04:05.999999} %{pid} %{module}] %{message}"

// Configure sets the global level from FRAMEWALL_LOGLEVEL and installs the stderr formatter.
func Configure() {
	logging.SetBackend(logging.NewLogBackend(os.Stderr, "", 0))
	logging.SetFormatter(logging.MustStringFormatter(format))
	logging.SetLevel(Level(os.Getenv("FRAMEWALL_LOGLEVEL")), "")
}

// Level maps a level name to a go-logging level. Unknown names fall back to INFO.
func Level(name string) logging.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return logging.DEBUG
	case "WARN", "WARNING":
		return logging.WARNING
	case "ERROR":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

// MustGetLogger returns the named module logger.
func MustGetLogger(module string) *logging.Logger {
	return logging.MustGetLogger(module)
}
