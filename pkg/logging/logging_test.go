package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/anchor-vcs/anchor/pkg/config"
)

func TestNewLevels(t *testing.T) {
	log := New(config.LoggingConfig{Level: "debug", Format: "text"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log = New(config.LoggingConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewJSONFormat(t *testing.T) {
	log := New(config.LoggingConfig{Level: "info", Format: "json"})
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("repo", "demo").Info("saved")
	assert.Contains(t, buf.String(), `"repo":"demo"`)
	assert.Contains(t, buf.String(), `"msg":"saved"`)
}
