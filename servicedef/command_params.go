package servicedef

import (
	o "github.com/iotlab/iothub-test-harness/framework/opt"
)

const (
	CommandCreateDevice = "createDevice"
	CommandDeleteDevice = "deleteDevice"
	CommandRunTest      = "runTest"
)

// CommandParams is the body of a POST to an entity URL.
type CommandParams struct {
	Command      string                       `json:"command"`
	CreateDevice o.Maybe[DeviceCommandParams] `json:"createDevice,omitempty"`
	DeleteDevice o.Maybe[DeviceCommandParams] `json:"deleteDevice,omitempty"`
}

type DeviceCommandParams struct {
	DeviceID string `json:"deviceId"`
}

// CreateDeviceResponse is the response to CommandCreateDevice.
type CreateDeviceResponse struct {
	DeviceID         string `json:"deviceId"`
	ConnectionString string `json:"connectionString"`
}

// RunTestResponse is the response to CommandRunTest. The test passed if Error is empty.
type RunTestResponse struct {
	Error string `json:"error,omitempty"`
}
