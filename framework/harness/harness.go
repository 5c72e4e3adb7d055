package harness

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iotlab/iothub-test-harness/framework"
)

// TestHarness is the main component that manages communication with the test service.
//
// It always communicates with a single test service, which it verifies is alive on startup. It
// can then create any number of entities within the test service (NewTestServiceEntity) and
// send them commands.
//
// It contains no domain-specific test logic, but only provides a general mechanism for test suites
// to build on.
type TestHarness struct {
	testServiceBaseURL string
	testServiceInfo    TestServiceInfo
	httpClient         *http.Client
	logger             framework.Logger
}

// NewTestHarness creates a TestHarness instance, and verifies that the test service is
// responding by querying its status resource until it answers or statusQueryTimeout elapses.
// Progress dots are written to startupOutput.
func NewTestHarness(
	ctx context.Context,
	testServiceBaseURL string,
	statusQueryTimeout time.Duration,
	debugLogger framework.Logger,
	startupOutput io.Writer,
) (*TestHarness, error) {
	if debugLogger == nil {
		debugLogger = framework.NullLogger()
	}
	if startupOutput == nil {
		startupOutput = io.Discard
	}

	h := &TestHarness{
		testServiceBaseURL: strings.TrimSuffix(testServiceBaseURL, "/"),
		httpClient:         http.DefaultClient,
		logger:             debugLogger,
	}

	testServiceInfo, err := h.queryTestServiceInfo(ctx, statusQueryTimeout, startupOutput)
	if err != nil {
		return nil, err
	}
	h.testServiceInfo = testServiceInfo

	return h, nil
}

// TestServiceInfo returns the initial status information received from the test service.
func (h *TestHarness) TestServiceInfo() TestServiceInfo {
	return h.testServiceInfo
}

// Capabilities is a shortcut for TestServiceInfo().Capabilities.
func (h *TestHarness) Capabilities() framework.Capabilities {
	return h.testServiceInfo.Capabilities
}
