package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/iotlab/iothub-test-harness/connstr"
	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/framework/e2etest"
	"github.com/iotlab/iothub-test-harness/protocol"
)

type commandParams struct {
	serviceURL               string
	connectionString         string
	eventHubConnectionString string
	consumerGroup            string
	protocols                []protocol.Binding
	configFile               string
	filters                  e2etest.RegexFilters
	skipFile                 string
	recordFailures           string
	jUnitFile                string
	logLevel                 logrus.Level
	stopServiceAtEnd         bool
	debug                    bool
	debugAll                 bool
	strict                   bool
}

// envParams are read from the environment with envdecode. They override the config file and
// are overridden by command-line flags.
type envParams struct {
	ServiceURL               string `env:"TEST_SERVICE_URL"`
	ConnectionString         string `env:"IOTHUB_CONNECTION_STRING"`
	EventHubConnectionString string `env:"IOTHUB_EVENTHUB_CONNECTION_STRING"`
	ConsumerGroup            string `env:"IOTHUB_CONSUMER_GROUP"`
}

// fileParams is the schema of the optional -config file.
type fileParams struct {
	URL                      string `yaml:"url"`
	ConnectionString         string `yaml:"connectionString"`
	EventHubConnectionString string `yaml:"eventHubConnectionString"`
	ConsumerGroup            string `yaml:"consumerGroup"`
	Protocols                string `yaml:"protocols"`
	LogLevel                 string `yaml:"logLevel"`
}

func (c *commandParams) Read(args []string) bool {
	if err := c.parse(args, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		return false
	}
	return true
}

func (c *commandParams) parse(args []string, errOut io.Writer) error {
	var logLevel, protocols string
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&c.serviceURL, "url", "", "test service URL")
	fs.StringVar(&c.connectionString, "connection-string", "", "IoT hub service connection string")
	fs.StringVar(&c.eventHubConnectionString, "eventhub-connection-string", "",
		"connection string of an event hub the IoT hub routes device messages to (read over its Kafka endpoint)")
	fs.StringVar(&c.consumerGroup, "consumer-group", "",
		"dedicated consumer group for reading events (default: read every partition without a group)")
	fs.StringVar(&protocols, "protocols", "", "comma-separated protocols to test, e.g. amqp,mqtt (default all)")
	fs.StringVar(&c.configFile, "config", "", "YAML file with default values for the other parameters")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.StringVar(&c.skipFile, "skip-from", "", "file with test IDs to skip, one per line")
	fs.StringVar(&c.recordFailures, "record-failures", "", "write the IDs of failed tests to this file")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.StringVar(&logLevel, "log-level", "", "logging level: trace, debug, info, warn, error (default info)")
	fs.BoolVar(&c.stopServiceAtEnd, "stop-service-at-end", false, "tell test service to exit after the test run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
	fs.BoolVar(&c.strict, "strict", false, "exit with an error status if any protocol test failed")

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	var file fileParams
	if c.configFile != "" {
		data, err := os.ReadFile(c.configFile)
		if err != nil {
			return fmt.Errorf("cannot read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("cannot parse config file %s: %w", c.configFile, err)
		}
	}

	var env envParams
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("invalid environment: %w", err)
	}

	c.serviceURL = firstNonEmpty(c.serviceURL, env.ServiceURL, file.URL)
	c.connectionString = firstNonEmpty(c.connectionString, env.ConnectionString, file.ConnectionString)
	c.eventHubConnectionString = firstNonEmpty(c.eventHubConnectionString,
		env.EventHubConnectionString, file.EventHubConnectionString)
	c.consumerGroup = firstNonEmpty(c.consumerGroup, env.ConsumerGroup, file.ConsumerGroup)

	if list := firstNonEmpty(protocols, file.Protocols); list != "" {
		bindings, err := parseProtocols(list)
		if err != nil {
			return err
		}
		c.protocols = bindings
	}

	level, err := framework.ParseLogLevel(firstNonEmpty(logLevel, file.LogLevel))
	if err != nil {
		return err
	}
	c.logLevel = level

	if c.serviceURL == "" {
		return errors.New("-url is required")
	}
	if c.connectionString == "" {
		return errors.New("-connection-string or IOTHUB_CONNECTION_STRING is required")
	}
	if _, err := connstr.ParseService(c.connectionString); err != nil {
		return fmt.Errorf("invalid IoT hub connection string: %w", err)
	}
	return nil
}

func parseProtocols(list string) ([]protocol.Binding, error) {
	var ret []protocol.Binding
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		b, err := protocol.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid -protocols: %w", err)
		}
		ret = append(ret, b)
	}
	if len(ret) == 0 {
		return nil, errors.New("invalid -protocols: no protocol given")
	}
	return ret, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
