package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.WithField("campaign_id", "GC1").Info("new campaign")
	assert.Contains(t, buf.String(), `"campaign_id":"GC1"`)
	assert.Contains(t, buf.String(), `"msg":"new campaign"`)
}

func TestNewFallbacks(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "loud", "")

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	_, isText := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)

	log.Debug("hidden")
	assert.Empty(t, buf.String())
}
