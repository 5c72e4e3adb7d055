package iothubtests

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iotlab/iothub-test-harness/connstr"
	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/e2etest"
	"github.com/iotlab/iothub-test-harness/framework/helpers"
	"github.com/iotlab/iothub-test-harness/ingestion"
	"github.com/iotlab/iothub-test-harness/protocol"
	"github.com/iotlab/iothub-test-harness/registry"
)

// ProtocolsScope is the name of the test scope that holds the per-protocol results, so their
// IDs are "protocols/AMQP" and so on.
const ProtocolsScope = "protocols"

// Pipeline runs the fixed sequence of stages for one device: open the event listener, create
// the device, test each protocol, close the listener, delete the device.
type Pipeline struct {
	listener  ingestion.Listener
	registry  registry.DeviceRegistry
	runner    *Runner
	bindings  []protocol.Binding
	newID     func() string
	logger    *logrus.Entry
	runConfig e2etest.TestConfiguration
}

// PipelineOption is a configuration option for NewPipeline.
type PipelineOption helpers.ConfigOption[Pipeline]

// WithLogger sets the logger for run progress. The default is the standard logrus logger.
func WithLogger(logger *logrus.Entry) PipelineOption {
	return helpers.ConfigOptionFunc[Pipeline](func(p *Pipeline) error {
		p.logger = logger
		return nil
	})
}

// WithTestConfiguration sets the filter and test logger that per-protocol results are
// reported to.
func WithTestConfiguration(config e2etest.TestConfiguration) PipelineOption {
	return helpers.ConfigOptionFunc[Pipeline](func(p *Pipeline) error {
		p.runConfig = config
		return nil
	})
}

// WithDeviceIDGenerator replaces NewDeviceID.
func WithDeviceIDGenerator(fn func() string) PipelineOption {
	return helpers.ConfigOptionFunc[Pipeline](func(p *Pipeline) error {
		p.newID = fn
		return nil
	})
}

// WithProtocols limits the run to the given bindings. They still run in the order of
// protocol.All, and each runs at most once. Without this option every binding runs.
func WithProtocols(bindings ...protocol.Binding) PipelineOption {
	return helpers.ConfigOptionFunc[Pipeline](func(p *Pipeline) error {
		if len(bindings) == 0 {
			return errors.New("at least one protocol must be selected")
		}
		selected := make(map[protocol.Binding]bool, len(bindings))
		for _, b := range bindings {
			if b.WireName() == "" {
				return fmt.Errorf("unknown protocol %s", b)
			}
			selected[b] = true
		}
		p.bindings = nil
		for _, b := range protocol.All() {
			if selected[b] {
				p.bindings = append(p.bindings, b)
			}
		}
		return nil
	})
}

// Protocols returns the bindings a run exercises, in order.
func (p *Pipeline) Protocols() []protocol.Binding {
	return append([]protocol.Binding(nil), p.bindings...)
}

// NewPipeline creates a Pipeline over the given collaborators.
func NewPipeline(
	listener ingestion.Listener,
	reg registry.DeviceRegistry,
	client protocol.Client,
	options ...PipelineOption,
) (*Pipeline, error) {
	p := &Pipeline{
		listener: listener,
		registry: reg,
		bindings: protocol.All(),
		newID:    NewDeviceID,
		logger:   framework.DefaultLogger(),
	}
	if err := helpers.ApplyOptions(p, options...); err != nil {
		return nil, err
	}
	if p.logger == nil {
		p.logger = framework.DefaultLogger()
	}
	counter, _ := listener.(ingestion.EventCounter)
	p.runner = NewRunner(client, counter, p.logger)
	return p, nil
}

// Report is what a run produced besides its terminal error.
type Report struct {
	DeviceID string
	Outcomes []Outcome
	Results  e2etest.Results
}

// runState is threaded through every stage. Each stage reads what earlier stages produced.
type runState struct {
	serviceConnectionString string
	deviceID                string
	deviceConnectionString  string
	scope                   *e2etest.T
	outcomes                []Outcome
}

type stage struct {
	name string
	run  func(ctx context.Context, s *runState) error
}

// Run executes every stage in order and returns the first setup or teardown error, or nil.
// Protocol test failures never end the run early and are not returned.
func (p *Pipeline) Run(ctx context.Context, serviceConnectionString string) error {
	_, err := p.RunWithReport(ctx, serviceConnectionString)
	return err
}

// RunWithReport is Run, also returning the per-protocol outcomes of the run.
func (p *Pipeline) RunWithReport(ctx context.Context, serviceConnectionString string) (Report, error) {
	root := e2etest.NewRoot(p.runConfig)
	state := &runState{
		serviceConnectionString: serviceConnectionString,
		deviceID:                p.newID(),
		scope:                   root.Scope(ProtocolsScope),
	}
	err := p.drive(ctx, state, p.stages())
	return Report{
		DeviceID: state.deviceID,
		Outcomes: state.outcomes,
		Results:  root.Results(),
	}, err
}

func (p *Pipeline) drive(ctx context.Context, state *runState, stages []stage) error {
	for _, st := range stages {
		if err := st.run(ctx, state); err != nil {
			p.logger.WithField(framework.StageLogField, st.name).Tracef("Stopping run: %s", err)
			return err
		}
	}
	return nil
}

func (p *Pipeline) stages() []stage {
	stages := []stage{
		{name: "open listener", run: p.openListener},
		{name: "create device", run: p.createDevice},
	}
	for _, b := range p.bindings {
		stages = append(stages, p.protocolStage(b))
	}
	return append(stages,
		stage{name: "close listener", run: p.closeListener},
		stage{name: "delete device", run: p.deleteDevice},
	)
}

func (p *Pipeline) openListener(ctx context.Context, s *runState) error {
	p.logger.Trace("Starting test service.")
	return p.listener.Open(ctx, s.serviceConnectionString)
}

func (p *Pipeline) createDevice(ctx context.Context, s *runState) error {
	p.logger.WithField(framework.DeviceIDLogField, s.deviceID).Trace("Registering temporary device")
	cs, err := p.registry.CreateDevice(ctx, s.serviceConnectionString, s.deviceID)
	if err != nil {
		return err
	}
	s.deviceConnectionString = cs
	p.logger.WithField(framework.DeviceIDLogField, s.deviceID).
		Debugf("Device connection string: %s", connstr.Redact(cs))
	return nil
}

// protocolStage never returns an error; the outcome is recorded in the run state instead.
func (p *Pipeline) protocolStage(b protocol.Binding) stage {
	return stage{
		name: b.Label(),
		run: func(ctx context.Context, s *runState) error {
			outcome := p.runner.RunProtocolTest(ctx, s.scope, s.deviceConnectionString, s.deviceID, b)
			s.outcomes = append(s.outcomes, outcome)
			return nil
		},
	}
}

func (p *Pipeline) closeListener(_ context.Context, _ *runState) error {
	p.listener.Close()
	return nil
}

func (p *Pipeline) deleteDevice(ctx context.Context, s *runState) error {
	p.logger.WithField(framework.DeviceIDLogField, s.deviceID).Trace("Removing temporary device")
	return p.registry.DeleteDevice(ctx, s.serviceConnectionString, s.deviceID)
}
