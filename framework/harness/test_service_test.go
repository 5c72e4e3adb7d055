package harness

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/internal/fakeservice"
	"github.com/iotlab/iothub-test-harness/servicedef"
)

func newHarness(t *testing.T, url string) *TestHarness {
	h, err := NewTestHarness(context.Background(), url, time.Second, framework.NullLogger(), nil)
	require.NoError(t, err)
	return h
}

func TestNewTestHarnessReadsStatus(t *testing.T) {
	svc := fakeservice.New()
	url := svc.Start()
	defer svc.Close()

	var out bytes.Buffer
	h, err := NewTestHarness(context.Background(), url+"/", time.Second, nil, &out)
	require.NoError(t, err)

	info := h.TestServiceInfo()
	assert.Equal(t, "fake-iot-sdk", info.Name)
	assert.True(t, h.Capabilities().Has(servicedef.CapabilityMQTT))
	assert.Contains(t, string(info.FullData), `"clientVersion":"1.0.0"`)
	assert.Contains(t, out.String(), "Connecting to test service at "+url)
}

func TestNewTestHarnessFailsOnErrorStatus(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(503), func(server *httptest.Server) {
		_, err := NewTestHarness(context.Background(), server.URL, time.Second, nil, nil)
		var statusErr *ServiceStatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, 503, statusErr.StatusCode)
	})
}

func TestNewTestHarnessFailsOnMalformedStatus(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(200, nil, []byte("not json"))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		_, err := NewTestHarness(context.Background(), server.URL, time.Second, nil, nil)
		assert.EqualError(t, err, "malformed status response from test service: not json")
	})
}

func TestNewTestHarnessTimesOut(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	url := server.URL
	server.Close()

	_, err := NewTestHarness(context.Background(), url, 250*time.Millisecond, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out, result of last query was")
}

func TestEntityLifecycle(t *testing.T) {
	svc := fakeservice.New()
	url := svc.Start()
	defer svc.Close()
	h := newHarness(t, url)
	ctx := context.Background()

	params := servicedef.CreateInstanceParams{
		Tag:      "registry",
		Registry: &servicedef.RegistryParams{ServiceConnectionString: "HostName=h;SharedAccessKeyName=n;SharedAccessKey=k"},
	}
	e, err := h.NewTestServiceEntity(ctx, params, "registry", nil)
	require.NoError(t, err)
	assert.Equal(t, url+"/entities/1", e.URL())
	assert.Equal(t, 1, svc.OpenEntities())

	var resp servicedef.CreateDeviceResponse
	err = e.SendCommandWithParams(ctx, servicedef.CommandParams{
		Command: servicedef.CommandCreateDevice,
	}, nil, &resp)
	require.NoError(t, err)

	err = e.SendCommand(ctx, "bogus", nil, nil)
	var statusErr *ServiceStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "unknown command \"bogus\"")

	require.NoError(t, e.Close(ctx))
	assert.Equal(t, 0, svc.OpenEntities())
	assert.Error(t, e.Close(ctx))
}

func TestNewTestServiceEntityRequiresLocation(t *testing.T) {
	handler := httphelpers.HandlerForMethod("GET", httphelpers.HandlerWithStatus(200), httphelpers.HandlerWithStatus(201))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		h := newHarness(t, server.URL)
		_, err := h.NewTestServiceEntity(context.Background(), map[string]string{}, "x", nil)
		assert.EqualError(t, err, "test service did not return a Location header with a resource URL")
	})
}

func TestSendCommandRequiresBodyWhenResponseExpected(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerForMethod("POST",
		httphelpers.HandlerWithResponse(201, http.Header{"Location": {"/entities/7"}}, nil),
		httphelpers.HandlerWithStatus(200)))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		h := newHarness(t, server.URL)
		<-requests // status query

		e, err := h.NewTestServiceEntity(context.Background(), map[string]string{}, "x", nil)
		require.NoError(t, err)
		<-requests

		var out servicedef.RunTestResponse
		err = e.SendCommand(context.Background(), servicedef.CommandRunTest, nil, &out)
		assert.EqualError(t, err, "expected a response body but got none")
		r := <-requests
		assert.Equal(t, "/entities/7", r.Request.URL.Path)
		assert.JSONEq(t, `{"command":"runTest"}`, string(r.Body))
	})
}

func TestStopService(t *testing.T) {
	svc := fakeservice.New()
	url := svc.Start()
	defer svc.Close()
	h := newHarness(t, url)

	require.NoError(t, h.StopService(context.Background()))
	assert.True(t, svc.Stopped())
}
