package iothubtests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/e2etest"
	"github.com/iotlab/iothub-test-harness/framework/opt"
	"github.com/iotlab/iothub-test-harness/ingestion"
	"github.com/iotlab/iothub-test-harness/protocol"
)

// Outcome is the result of one protocol test. A failed outcome is still a successful pipeline
// stage; Failure only carries the detail for logs and reports.
type Outcome struct {
	Label    string
	Failure  opt.Maybe[string]
	Skipped  bool
	Duration time.Duration
}

func (o Outcome) Passed() bool {
	return !o.Skipped && !o.Failure.IsDefined()
}

func (o Outcome) String() string {
	switch {
	case o.Skipped:
		return o.Label + ": skipped"
	case o.Failure.IsDefined():
		return o.Label + ": failed: " + o.Failure.Value()
	default:
		return o.Label + ": passed"
	}
}

// Runner runs a single protocol test and isolates its failure from the caller.
type Runner struct {
	client protocol.Client
	events ingestion.EventCounter
	logger *logrus.Entry
}

// NewRunner creates a Runner. If events is non-nil, the number of events seen from the device
// is logged after each test.
func NewRunner(client protocol.Client, events ingestion.EventCounter, logger *logrus.Entry) *Runner {
	if logger == nil {
		logger = framework.DefaultLogger()
	}
	return &Runner{client: client, events: events, logger: logger}
}

// RunProtocolTest invokes the client's test for one binding exactly once and returns its
// outcome. Errors and panics from the client are logged, never returned.
//
// If scope is non-nil the test runs as a subtest of it named after the binding's label, so it
// shows up in test reports and can be excluded by the scope's filter. An excluded test does not
// call the client.
func (r *Runner) RunProtocolTest(
	ctx context.Context,
	scope *e2etest.T,
	deviceConnectionString string,
	deviceID string,
	binding protocol.Binding,
) Outcome {
	if scope == nil {
		return r.run(ctx, deviceConnectionString, deviceID, binding)
	}

	var outcome Outcome
	result := scope.Run(binding.Label(), func(t *e2etest.T) {
		outcome = r.run(ctx, deviceConnectionString, deviceID, binding)
		if outcome.Failure.IsDefined() {
			t.Fail(errors.New(outcome.Failure.Value()))
		}
	})
	if result.Skipped && outcome.Label == "" {
		r.logger.WithField(framework.ProtocolLogField, binding.Label()).
			Infof("Skipping %s Test: %s", binding.Label(), result.SkipReason)
		return Outcome{Label: binding.Label(), Skipped: true}
	}
	return outcome
}

func (r *Runner) run(
	ctx context.Context,
	deviceConnectionString string,
	deviceID string,
	binding protocol.Binding,
) Outcome {
	label := binding.Label()
	logger := r.logger.WithFields(logrus.Fields{
		framework.ProtocolLogField: label,
		framework.DeviceIDLogField: deviceID,
	})
	logger.Infof("Starting %s Test...", label)

	startTime := time.Now()
	err := r.invoke(ctx, deviceConnectionString, deviceID, binding)
	outcome := Outcome{Label: label, Duration: time.Since(startTime)}

	if err != nil {
		outcome.Failure = opt.Some(err.Error())
		logger.Errorf("--> Failed to run %s test, error: %s", label, err)
	} else {
		logger.Infof("--> Successfully ran %s test.", label)
	}
	if r.events != nil {
		logger.Debugf("%d events received from device so far", r.events.EventCount(deviceID))
	}
	return outcome
}

func (r *Runner) invoke(
	ctx context.Context,
	deviceConnectionString string,
	deviceID string,
	binding protocol.Binding,
) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected panic: %v", p)
		}
	}()
	return r.client.RunTest(ctx, deviceConnectionString, binding, deviceID)
}
