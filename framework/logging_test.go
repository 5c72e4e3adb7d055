package framework

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, level)

	level, err = ParseLogLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, logrus.TraceLevel, level)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestAsDebugLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	l := AsDebugLogger(logrus.NewEntry(logger).WithField(DeviceIDLogField, "device1"))

	l.Printf("sending %s", "runTest")
	l.Println("done")

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, "sending runTest", entries[0].Message)
	assert.Equal(t, "device1", entries[0].Data[DeviceIDLogField])
	assert.Equal(t, "done", entries[1].Message)
}

func TestCapabilities(t *testing.T) {
	cs := Capabilities{"registry", "mqtt"}
	assert.True(t, cs.Has("mqtt"))
	assert.False(t, cs.Has("amqp"))
	assert.Equal(t, []string{"amqp", "https"}, cs.Missing("amqp", "mqtt", "https"))
	assert.Nil(t, cs.Missing("registry"))
}

func TestCapturingLoggerCopiesParentOutputToChild(t *testing.T) {
	var parent, child CapturingLogger
	parent.Printf("before %d", 1)
	parent.AddChildLogger(&child)
	parent.Println("during")
	parent.RemoveChildLogger(&child)

	out := child.Output()
	require.Len(t, out, 2)
	assert.Equal(t, "before 1", out[0].Message)
	assert.Equal(t, "during", out[1].Message)
	assert.Contains(t, out.ToString("> "), "> [")
}
