// Package registry is the device identity registry contract used by a test run, and its
// implementation on top of the test service.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/iotlab/iothub-test-harness/connstr"
	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/harness"
	o "github.com/iotlab/iothub-test-harness/framework/opt"
	"github.com/iotlab/iothub-test-harness/servicedef"
)

// DeviceRegistry creates and deletes device identities.
type DeviceRegistry interface {
	// CreateDevice registers deviceID and returns its device connection string.
	CreateDevice(ctx context.Context, serviceConnectionString, deviceID string) (string, error)
	DeleteDevice(ctx context.Context, serviceConnectionString, deviceID string) error
}

// ServiceRegistry performs registry operations through the test service's registry entity.
type ServiceRegistry struct {
	harness *harness.TestHarness
	logger  framework.Logger
}

func NewServiceRegistry(h *harness.TestHarness, logger framework.Logger) *ServiceRegistry {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &ServiceRegistry{harness: h, logger: logger}
}

func (r *ServiceRegistry) CreateDevice(ctx context.Context, serviceConnectionString, deviceID string) (string, error) {
	var resp servicedef.CreateDeviceResponse
	err := r.withRegistry(ctx, serviceConnectionString, func(e *harness.TestServiceEntity) error {
		return e.SendCommandWithParams(ctx, servicedef.CommandParams{
			Command:      servicedef.CommandCreateDevice,
			CreateDevice: o.Some(servicedef.DeviceCommandParams{DeviceID: deviceID}),
		}, r.logger, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("creating device %s: %w", deviceID, err)
	}
	if resp.ConnectionString == "" {
		return "", r.discard(ctx, serviceConnectionString, deviceID,
			fmt.Errorf("creating device %s: test service returned no connection string", deviceID))
	}
	if dev, err := connstr.ParseDevice(resp.ConnectionString); err == nil && dev.DeviceID != deviceID {
		return "", r.discard(ctx, serviceConnectionString, deviceID,
			fmt.Errorf("creating device %s: registry returned credentials for %s", deviceID, dev.DeviceID))
	}
	return resp.ConnectionString, nil
}

// discard deletes a device whose creation succeeded but whose credentials were rejected, since
// the caller treats it as never created. A delete failure is logged; cause is always returned.
func (r *ServiceRegistry) discard(ctx context.Context, serviceConnectionString, deviceID string, cause error) error {
	if err := r.DeleteDevice(ctx, serviceConnectionString, deviceID); err != nil {
		r.logger.Printf("Could not remove rejected device %s: %s", deviceID, err)
	}
	return cause
}

func (r *ServiceRegistry) DeleteDevice(ctx context.Context, serviceConnectionString, deviceID string) error {
	err := r.withRegistry(ctx, serviceConnectionString, func(e *harness.TestServiceEntity) error {
		return e.SendCommandWithParams(ctx, servicedef.CommandParams{
			Command:      servicedef.CommandDeleteDevice,
			DeleteDevice: o.Some(servicedef.DeviceCommandParams{DeviceID: deviceID}),
		}, r.logger, nil)
	})
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", deviceID, err)
	}
	return nil
}

// ErrNoRegistry is returned when the test service does not have the registry capability.
var ErrNoRegistry = errors.New("test service does not have capability \"" + servicedef.CapabilityRegistry + "\"")

func (r *ServiceRegistry) withRegistry(
	ctx context.Context,
	serviceConnectionString string,
	action func(*harness.TestServiceEntity) error,
) error {
	if !r.harness.Capabilities().Has(servicedef.CapabilityRegistry) {
		return ErrNoRegistry
	}
	params := servicedef.CreateInstanceParams{
		Tag:      "registry",
		Registry: &servicedef.RegistryParams{ServiceConnectionString: serviceConnectionString},
	}
	entity, err := r.harness.NewTestServiceEntity(ctx, params, "registry client", r.logger)
	if err != nil {
		return err
	}
	defer func() { _ = entity.Close(ctx) }()
	return action(entity)
}
