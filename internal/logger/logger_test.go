package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndServiceField(t *testing.T) {
	l := New("ledger", "debug")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithField("user_id", "u1").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ledger", entry["service"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "hello", entry["msg"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := New("", "chatty")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
