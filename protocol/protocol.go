// Package protocol defines the wire protocols a device can be exercised over, and the client
// contract for running one functional test over one of them.
package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/iotlab/iothub-test-harness/servicedef"
)

// Binding identifies one device transport.
type Binding int

const (
	AMQP Binding = iota
	AMQPWebSocket
	HTTPS
	MQTT
)

// All returns every binding in the order a run exercises them.
func All() []Binding {
	return []Binding{AMQP, AMQPWebSocket, HTTPS, MQTT}
}

// Label is the human-readable name used in logs and test IDs.
func (b Binding) Label() string {
	switch b {
	case AMQP:
		return "AMQP"
	case AMQPWebSocket:
		return "AMQP-WS"
	case HTTPS:
		return "HTTPS"
	case MQTT:
		return "MQTT"
	default:
		return fmt.Sprintf("Binding(%d)", int(b))
	}
}

func (b Binding) String() string { return b.Label() }

// WireName is the name used in the test service protocol, which is also the capability the
// service must report to support the binding.
func (b Binding) WireName() string {
	switch b {
	case AMQP:
		return servicedef.CapabilityAMQP
	case AMQPWebSocket:
		return servicedef.CapabilityAMQPWS
	case HTTPS:
		return servicedef.CapabilityHTTPS
	case MQTT:
		return servicedef.CapabilityMQTT
	default:
		return ""
	}
}

// Parse accepts either a label or a wire name, case-insensitively.
func Parse(s string) (Binding, error) {
	for _, b := range All() {
		if strings.EqualFold(s, b.Label()) || strings.EqualFold(s, b.WireName()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

// Client runs a self-contained functional test for a device over one binding. A nil return
// means the test passed.
type Client interface {
	RunTest(ctx context.Context, deviceConnectionString string, binding Binding, deviceID string) error
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, deviceConnectionString string, binding Binding, deviceID string) error

func (f ClientFunc) RunTest(ctx context.Context, deviceConnectionString string, binding Binding, deviceID string) error {
	return f(ctx, deviceConnectionString, binding, deviceID)
}
