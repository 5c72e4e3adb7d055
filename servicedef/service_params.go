package servicedef

import "github.com/iotlab/iothub-test-harness/framework"

const (
	CapabilityRegistry = "registry"
	CapabilityAMQP     = "amqp"
	CapabilityAMQPWS   = "amqp-ws"
	CapabilityHTTPS    = "https"
	CapabilityMQTT     = "mqtt"
)

// Entity kinds for CreateInstanceParams.
const (
	EntityRegistry     = "registry"
	EntityDeviceClient = "deviceClient"
)

// StatusRep is the response to GET on the test service root.
type StatusRep struct {
	// Name is the name of the SDK the test service wraps, such as "azure-iot-sdk-node".
	Name string `json:"name"`

	// ClientVersion is the version of that SDK.
	ClientVersion string `json:"clientVersion,omitempty"`

	Capabilities framework.Capabilities `json:"capabilities"`
}

// CreateInstanceParams is the body of a POST to the test service root. Exactly one of Registry
// or DeviceClient is set.
type CreateInstanceParams struct {
	Tag          string              `json:"tag"`
	Registry     *RegistryParams     `json:"registry,omitempty"`
	DeviceClient *DeviceClientParams `json:"deviceClient,omitempty"`
}

// RegistryParams configures a registry client entity.
type RegistryParams struct {
	ServiceConnectionString string `json:"serviceConnectionString"`
}

// DeviceClientParams configures a device client entity bound to one protocol.
type DeviceClientParams struct {
	ConnectionString string `json:"connectionString"`
	DeviceID         string `json:"deviceId"`
	Protocol         string `json:"protocol"`
}
