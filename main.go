package main

import (
	"bufio"
	"context"
	_ "embed" // this is required in order for go:embed to work
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iotlab/iothub-test-harness/connstr"
	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/e2etest"
	"github.com/iotlab/iothub-test-harness/framework/harness"
	"github.com/iotlab/iothub-test-harness/ingestion"
	"github.com/iotlab/iothub-test-harness/iothubtests"
)

const statusQueryTimeout = time.Second * 10

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	fmt.Printf("iothub-test-harness v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	results, err := run(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if params.strict && !results.OK() {
		os.Exit(1)
	}
}

func run(params commandParams) (*e2etest.Results, error) {
	if params.skipFile != "" {
		if err := loadSuppressions(&params); err != nil {
			return nil, err
		}
	}

	framework.InitLogger(params.logLevel, os.Stdout)
	logger := framework.DefaultLogger()

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}

	ctx := context.Background()
	harness, err := harness.NewTestHarness(
		ctx,
		params.serviceURL,
		statusQueryTimeout,
		mainDebugLogger,
		os.Stdout,
	)
	if err != nil {
		return nil, err
	}
	info := harness.TestServiceInfo()
	logger.WithField("capabilities", info.Capabilities).Infof("Test service: %s", info.Name)

	var testLogger e2etest.TestLogger
	consoleLogger := e2etest.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	if params.jUnitFile == "" {
		testLogger = consoleLogger
	} else {
		testLogger = &e2etest.MultiTestLogger{Loggers: []e2etest.TestLogger{
			consoleLogger,
			e2etest.NewJUnitTestLogger(params.jUnitFile, map[string]string{
				"testService": info.Name,
				"hub":         hubName(params.connectionString),
				"filters":     describeFilters(params.filters),
			}),
		}}
	}
	params.filters.Describe(os.Stdout)

	var options []iothubtests.PipelineOption
	if len(params.protocols) != 0 {
		fmt.Printf("Testing protocols: %v\n", params.protocols)
		options = append(options, iothubtests.WithProtocols(params.protocols...))
	}
	report, runErr := iothubtests.RunIoTHubTestSuite(
		ctx,
		harness,
		newListener(params, logger),
		params.connectionString,
		e2etest.TestConfiguration{Filter: params.filters, TestLogger: testLogger},
		logger,
		options...,
	)
	results := report.Results

	fmt.Println()
	logErr := testLogger.EndLog(results)

	if params.stopServiceAtEnd {
		fmt.Println("Stopping test service")
		if err := harness.StopService(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop test service: %s\n", err)
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	if logErr != nil {
		return nil, fmt.Errorf("error writing log: %v", logErr)
	}

	if params.recordFailures != "" {
		f, err := os.Create(params.recordFailures)
		if err != nil {
			return nil, fmt.Errorf("cannot create suppression file: %v", err)
		}
		for _, test := range results.Failures {
			fmt.Fprintln(f, test.TestID)
		}
		_ = f.Close()
	}

	return &results, nil
}

func newListener(params commandParams, logger *logrus.Entry) ingestion.Listener {
	if params.eventHubConnectionString == "" {
		logger.Warn("No Event Hubs connection string was given; device events will not be read")
		return ingestion.NopListener{}
	}
	return ingestion.NewKafkaListener(ingestion.KafkaConfig{
		EventHubConnectionString: params.eventHubConnectionString,
		ConsumerGroup:            params.consumerGroup,
	}, logger)
}

func hubName(serviceConnectionString string) string {
	s, err := connstr.ParseService(serviceConnectionString)
	if err != nil {
		return ""
	}
	return s.HubName()
}

func describeFilters(filters e2etest.RegexFilters) string {
	var sb strings.Builder
	filters.Describe(&sb)
	return strings.TrimSpace(sb.String())
}

func loadSuppressions(params *commandParams) error {
	file, err := os.Open(params.skipFile)
	if err != nil {
		return fmt.Errorf("cannot open provided suppression file: %v", err)
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		// Ignore blank lines
		if strings.TrimSpace(line) == "" {
			continue
		}
		escaped := regexp.QuoteMeta(line)
		if err := params.filters.MustNotMatch.Set(escaped); err != nil {
			return fmt.Errorf("cannot parse suppression: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("while processing suppression file: %v", err)
	}
	return nil
}
