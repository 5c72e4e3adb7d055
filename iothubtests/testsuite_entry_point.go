package iothubtests

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/e2etest"
	"github.com/iotlab/iothub-test-harness/framework/harness"
	"github.com/iotlab/iothub-test-harness/ingestion"
	"github.com/iotlab/iothub-test-harness/protocol"
	"github.com/iotlab/iothub-test-harness/registry"
	"github.com/iotlab/iothub-test-harness/servicedef"
)

// RunIoTHubTestSuite runs the pipeline against a test service, using it as both the device
// registry and the protocol client. Options are applied after the logger and test
// configuration. The returned error is the pipeline's terminal error, or an
// error if the test service cannot act as a registry at all.
func RunIoTHubTestSuite(
	ctx context.Context,
	h *harness.TestHarness,
	listener ingestion.Listener,
	serviceConnectionString string,
	config e2etest.TestConfiguration,
	logger *logrus.Entry,
	options ...PipelineOption,
) (Report, error) {
	if logger == nil {
		logger = framework.DefaultLogger()
	}
	info := h.TestServiceInfo()
	if !info.Capabilities.Has(servicedef.CapabilityRegistry) {
		return Report{}, fmt.Errorf("test service %q does not have capability %q",
			info.Name, servicedef.CapabilityRegistry)
	}

	debugLogger := framework.AsDebugLogger(logger)
	p, err := NewPipeline(
		listener,
		registry.NewServiceRegistry(h, debugLogger),
		protocol.NewServiceClient(h, debugLogger),
		append([]PipelineOption{WithLogger(logger), WithTestConfiguration(config)}, options...)...,
	)
	if err != nil {
		return Report{}, err
	}
	if missing := info.Capabilities.Missing(wireNames(p.Protocols())...); len(missing) != 0 {
		logger.Warnf("Test service does not support %v; those protocol tests will fail", missing)
	}
	return p.RunWithReport(ctx, serviceConnectionString)
}

func wireNames(bindings []protocol.Binding) []string {
	ret := make([]string, 0, len(bindings))
	for _, b := range bindings {
		ret = append(ret, b.WireName())
	}
	return ret
}
