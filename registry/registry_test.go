package registry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/harness"
	"github.com/iotlab/iothub-test-harness/internal/fakeservice"
	"github.com/iotlab/iothub-test-harness/servicedef"
)

const serviceCS = "HostName=fakehub.azure-devices.net;SharedAccessKeyName=iothubowner;SharedAccessKey=a2V5"

func newRegistry(t *testing.T, svc *fakeservice.Service) *ServiceRegistry {
	url := svc.Start()
	t.Cleanup(svc.Close)
	h, err := harness.NewTestHarness(context.Background(), url, time.Second, framework.NullLogger(), nil)
	require.NoError(t, err)
	return NewServiceRegistry(h, nil)
}

func TestCreateAndDeleteDevice(t *testing.T) {
	svc := fakeservice.New()
	r := newRegistry(t, svc)
	ctx := context.Background()

	cs, err := r.CreateDevice(ctx, serviceCS, "device42")
	require.NoError(t, err)
	assert.Equal(t, fakeservice.DeviceConnectionString("device42"), cs)

	require.NoError(t, r.DeleteDevice(ctx, serviceCS, "device42"))

	var commands []fakeservice.Call
	for _, c := range svc.Calls() {
		if c.Command != "" {
			commands = append(commands, c)
		}
	}
	require.Len(t, commands, 2)
	assert.Equal(t, servicedef.CommandCreateDevice, commands[0].Command)
	assert.Equal(t, "device42", commands[0].DeviceID)
	assert.Equal(t, servicedef.CommandDeleteDevice, commands[1].Command)
	assert.Equal(t, "device42", commands[1].DeviceID)
	assert.Equal(t, 0, svc.OpenEntities())
}

func TestCreateDeviceFailure(t *testing.T) {
	svc := fakeservice.New()
	svc.CreateDeviceStatus = http.StatusConflict
	r := newRegistry(t, svc)

	_, err := r.CreateDevice(context.Background(), serviceCS, "device42")
	var statusErr *harness.ServiceStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "creating device device42: ")
	assert.Equal(t, 0, svc.OpenEntities())
}

func TestRejectedCredentialsRemoveTheDevice(t *testing.T) {
	for name, issue := range map[string]func(string) string{
		"no connection string": func(string) string { return "" },
		"wrong device":         func(string) string { return fakeservice.DeviceConnectionString("someone-else") },
	} {
		t.Run(name, func(t *testing.T) {
			svc := fakeservice.New()
			svc.IssueConnectionString = issue
			r := newRegistry(t, svc)

			_, err := r.CreateDevice(context.Background(), serviceCS, "device42")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "creating device device42: ")

			var deleted []string
			for _, c := range svc.Calls() {
				if c.Command == servicedef.CommandDeleteDevice {
					deleted = append(deleted, c.DeviceID)
				}
			}
			assert.Equal(t, []string{"device42"}, deleted)
			assert.Equal(t, 0, svc.OpenEntities())
		})
	}
}

func TestRejectedCredentialsKeepCauseWhenRemoveFails(t *testing.T) {
	svc := fakeservice.New()
	svc.IssueConnectionString = func(string) string { return "" }
	svc.DeleteDeviceStatus = http.StatusInternalServerError
	r := newRegistry(t, svc)

	_, err := r.CreateDevice(context.Background(), serviceCS, "device42")
	assert.EqualError(t, err, "creating device device42: test service returned no connection string")
}

func TestDeleteDeviceFailure(t *testing.T) {
	svc := fakeservice.New()
	svc.DeleteDeviceStatus = http.StatusNotFound
	r := newRegistry(t, svc)

	err := r.DeleteDevice(context.Background(), serviceCS, "device42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleting device device42: test service returned error 404")
}

func TestRegistryCapabilityRequired(t *testing.T) {
	svc := fakeservice.New()
	svc.Capabilities = framework.Capabilities{servicedef.CapabilityMQTT}
	r := newRegistry(t, svc)

	_, err := r.CreateDevice(context.Background(), serviceCS, "device42")
	assert.ErrorIs(t, err, ErrNoRegistry)
	assert.Empty(t, svc.Calls())
}
