package logger

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDoesNotMutateReceiver(t *testing.T) {
	base, hook := test.NewNullLogger()
	l := NewWithLogger(base, "ingest")

	derived := l.With("run_id", "r-1")
	derived.Info("derived")
	l.Info("base")

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "r-1", entries[0].Data["run_id"])
	assert.Equal(t, "ingest", entries[0].Data["service_name"])
	_, ok := entries[1].Data["run_id"]
	assert.False(t, ok)
}

func TestWithError(t *testing.T) {
	base, hook := test.NewNullLogger()
	NewWithLogger(base, "svc").WithError(errors.New("boom")).Warn("failed")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "boom")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}
