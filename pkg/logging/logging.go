// Package logging builds the daemon logger from configuration.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/anchor-vcs/anchor/pkg/config"
)

// New returns a logger configured per cfg. Unknown levels fall back to
// info, unknown formats to text.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
