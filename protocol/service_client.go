package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/harness"
	"github.com/iotlab/iothub-test-harness/servicedef"
)

// ErrNotSupported is returned when the test service does not report the capability for a binding.
var ErrNotSupported = errors.New("protocol not supported by test service")

// TestFailedError is a failure reported by the test service for an otherwise successful
// runTest command.
type TestFailedError struct {
	Binding Binding
	Message string
}

func (e *TestFailedError) Error() string {
	return e.Message
}

// ServiceClient runs protocol tests through the test service. Each RunTest creates a device
// client entity for the binding, sends it the runTest command, and disposes of it.
type ServiceClient struct {
	harness *harness.TestHarness
	logger  framework.Logger
}

func NewServiceClient(h *harness.TestHarness, logger framework.Logger) *ServiceClient {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &ServiceClient{harness: h, logger: logger}
}

func (c *ServiceClient) RunTest(
	ctx context.Context,
	deviceConnectionString string,
	binding Binding,
	deviceID string,
) error {
	if !c.harness.Capabilities().Has(binding.WireName()) {
		return fmt.Errorf("%s: %w", binding.Label(), ErrNotSupported)
	}
	params := servicedef.CreateInstanceParams{
		Tag: deviceID + "-" + binding.WireName(),
		DeviceClient: &servicedef.DeviceClientParams{
			ConnectionString: deviceConnectionString,
			DeviceID:         deviceID,
			Protocol:         binding.WireName(),
		},
	}
	entity, err := c.harness.NewTestServiceEntity(ctx, params, binding.Label()+" device client", c.logger)
	if err != nil {
		return fmt.Errorf("creating %s device client: %w", binding.Label(), err)
	}
	defer func() { _ = entity.Close(ctx) }()

	var resp servicedef.RunTestResponse
	if err := entity.SendCommand(ctx, servicedef.CommandRunTest, c.logger, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &TestFailedError{Binding: binding, Message: resp.Error}
	}
	return nil
}
