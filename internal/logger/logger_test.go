package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "production", "debug")

	Component(log, "forum").WithField("room", "general").Info("message stored")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "forum", entry["component"])
	assert.Equal(t, "general", entry["room"])
	assert.Equal(t, "message stored", entry["msg"])
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log := NewWithOutput(&bytes.Buffer{}, "development", "loud")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	_, isText := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}
