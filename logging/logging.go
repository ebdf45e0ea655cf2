// Package logging wires up the registry's structured leveled logging using
// github.com/op/go-logging: a package-level logger per caller obtained
// through MustGetLogger, a stderr backend by default, and an environment
// variable overriding the default level.
package logging

import (
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} [%{module}] ▶ %{message}`,
)

// DefaultLevel is used when REGISTRY_LOG_LEVEL is unset or unrecognized.
const DefaultLevel = logging.NOTICE

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(stderrFormat)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(levelFromEnv(), "")
	logging.SetBackend(leveled)
}

func levelFromEnv() logging.Level {
	switch os.Getenv("REGISTRY_LOG_LEVEL") {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	default:
		return DefaultLevel
	}
}

// MustGetLogger returns the named logger, creating it if necessary. Callers
// use a package path-shaped name (e.g. "store/sqlitestore") so log lines
// identify their origin.
func MustGetLogger(name string) *logging.Logger {
	return logging.MustGetLogger(name)
}
