package iothubtests

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/iothub-test-harness/framework/e2etest"
	"github.com/iotlab/iothub-test-harness/protocol"
)

func newTestRunner(client protocol.Client, events *countingListener) (*Runner, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	if events == nil {
		return NewRunner(client, nil, logrus.NewEntry(logger)), hook
	}
	return NewRunner(client, events, logrus.NewEntry(logger)), hook
}

func TestRunnerReturnsPassingOutcome(t *testing.T) {
	log := &callLog{}
	r, hook := newTestRunner(&fakeClient{log: log}, nil)

	o := r.RunProtocolTest(context.Background(), nil, "cs1", testDeviceID, protocol.HTTPS)
	assert.Equal(t, "HTTPS", o.Label)
	assert.True(t, o.Passed())
	assert.Equal(t, "HTTPS: passed", o.String())
	assert.Equal(t, []string{"test HTTPS cs1 " + testDeviceID}, log.all())
	assert.Equal(t, "--> Successfully ran HTTPS test.", hook.LastEntry().Message)
}

func TestRunnerIsolatesFailure(t *testing.T) {
	client := protocol.ClientFunc(func(context.Context, string, protocol.Binding, string) error {
		return errors.New("connack refused")
	})
	r, hook := newTestRunner(client, nil)

	o := r.RunProtocolTest(context.Background(), nil, "cs1", testDeviceID, protocol.MQTT)
	assert.False(t, o.Passed())
	assert.Equal(t, "connack refused", o.Failure.Value())
	assert.Equal(t, "MQTT: failed: connack refused", o.String())

	last := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, "--> Failed to run MQTT test, error: connack refused", last.Message)
	assert.Equal(t, testDeviceID, last.Data["deviceId"])
}

func TestRunnerRecoversPanic(t *testing.T) {
	log := &callLog{}
	client := &fakeClient{log: log, panics: map[protocol.Binding]bool{protocol.AMQPWebSocket: true}}
	r, _ := newTestRunner(client, nil)

	o := r.RunProtocolTest(context.Background(), nil, "cs1", testDeviceID, protocol.AMQPWebSocket)
	require.True(t, o.Failure.IsDefined())
	assert.Equal(t, "unexpected panic: client blew up", o.Failure.Value())
}

func TestRunnerCallsClientOnce(t *testing.T) {
	calls := 0
	client := protocol.ClientFunc(func(context.Context, string, protocol.Binding, string) error {
		calls++
		return errors.New("timeout")
	})
	r, _ := newTestRunner(client, nil)
	r.RunProtocolTest(context.Background(), nil, "cs1", testDeviceID, protocol.AMQP)
	assert.Equal(t, 1, calls)
}

func TestRunnerLogsEventCount(t *testing.T) {
	events := &countingListener{fakeListener{counts: map[string]int{testDeviceID: 5}}}
	r, hook := newTestRunner(&fakeClient{log: &callLog{}}, events)

	r.RunProtocolTest(context.Background(), nil, "cs1", testDeviceID, protocol.AMQP)
	last := hook.LastEntry()
	assert.Equal(t, logrus.DebugLevel, last.Level)
	assert.Equal(t, "5 events received from device so far", last.Message)
}

func TestRunnerRecordsResultInScope(t *testing.T) {
	client := protocol.ClientFunc(func(_ context.Context, _ string, b protocol.Binding, _ string) error {
		if b == protocol.AMQP {
			return errors.New("amqp:unauthorized-access")
		}
		return nil
	})
	r, _ := newTestRunner(client, nil)
	root := e2etest.NewRoot(e2etest.TestConfiguration{})
	scope := root.Scope(ProtocolsScope)

	failed := r.RunProtocolTest(context.Background(), scope, "cs1", testDeviceID, protocol.AMQP)
	passed := r.RunProtocolTest(context.Background(), scope, "cs1", testDeviceID, protocol.HTTPS)
	assert.False(t, failed.Passed())
	assert.True(t, passed.Passed())

	results := root.Results()
	require.Len(t, results.Tests, 2)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "protocols/AMQP", results.Failures[0].TestID.String())
}

func TestNewDeviceID(t *testing.T) {
	a, b := NewDeviceID(), NewDeviceID()
	assert.True(t, strings.HasPrefix(a, "device"))
	assert.Len(t, a, len("device")+36)
	assert.NotEqual(t, a, b)
}
