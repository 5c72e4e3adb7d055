package iothubtests

import (
	"context"
	"fmt"
	"sync"

	"github.com/iotlab/iothub-test-harness/protocol"
)

// callLog records collaborator calls in the order they happened, across all fakes.
type callLog struct {
	calls []string
	lock  sync.Mutex
}

func (l *callLog) add(format string, args ...interface{}) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeListener struct {
	log     *callLog
	openErr error
	counts  map[string]int
}

func (f *fakeListener) Open(_ context.Context, cs string) error {
	f.log.add("open %s", cs)
	return f.openErr
}

func (f *fakeListener) Close() {
	f.log.add("close")
}

type countingListener struct {
	fakeListener
}

func (c *countingListener) EventCount(deviceID string) int {
	return c.counts[deviceID]
}

type fakeRegistry struct {
	log       *callLog
	createErr error
	deleteErr error
	deviceCS  string
}

func (f *fakeRegistry) CreateDevice(_ context.Context, cs, deviceID string) (string, error) {
	f.log.add("create %s %s", cs, deviceID)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.deviceCS, nil
}

func (f *fakeRegistry) DeleteDevice(_ context.Context, cs, deviceID string) error {
	f.log.add("delete %s %s", cs, deviceID)
	return f.deleteErr
}

type fakeClient struct {
	log    *callLog
	errors map[protocol.Binding]error
	panics map[protocol.Binding]bool
}

func (f *fakeClient) RunTest(_ context.Context, deviceCS string, binding protocol.Binding, deviceID string) error {
	f.log.add("test %s %s %s", binding.Label(), deviceCS, deviceID)
	if f.panics[binding] {
		panic("client blew up")
	}
	return f.errors[binding]
}
