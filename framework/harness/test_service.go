package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iotlab/iothub-test-harness/framework"
)

// TestServiceInfo is status information returned by the test service from the initial status query.
type TestServiceInfo struct {
	TestServiceInfoBase

	// FullData is the entire response received from the test service, which might contain additional
	// properties beyond TestServiceInfoBase.
	FullData []byte
}

// TestServiceInfoBase is the basic set of properties that all test services must provide.
type TestServiceInfoBase struct {
	// Name is the name of the SDK that the test service is wrapping, such as "azure-iot-sdk-node".
	Name string `json:"name"`

	// Capabilities is a list of strings representing optional features of the test service.
	Capabilities framework.Capabilities `json:"capabilities"`
}

// TestServiceEntity represents some kind of entity that we have asked the test service to create,
// which the test harness will interact with.
type TestServiceEntity struct {
	owner       *TestHarness
	resourceURL string
	logger      framework.Logger
}

const statusQueryRetryInterval = time.Millisecond * 100

func (h *TestHarness) queryTestServiceInfo(
	ctx context.Context,
	timeout time.Duration,
	output io.Writer,
) (TestServiceInfo, error) {
	fmt.Fprintf(output, "Connecting to test service at %s", h.testServiceBaseURL)

	deadline := time.Now().Add(timeout)
	for {
		fmt.Fprintf(output, ".")
		respData, _, err := h.doRequest(ctx, http.MethodGet, h.testServiceBaseURL, nil)
		var statusErr *ServiceStatusError
		if err == nil || errors.As(err, &statusErr) {
			fmt.Fprintln(output)
			if err != nil {
				return TestServiceInfo{}, err
			}
			if len(respData) == 0 {
				fmt.Fprintf(output, "Status query successful, but service provided no metadata\n")
				return TestServiceInfo{}, nil
			}
			fmt.Fprintf(output, "Status query returned metadata: %s\n", string(respData))
			var base TestServiceInfoBase
			if err := json.Unmarshal(respData, &base); err != nil {
				return TestServiceInfo{}, fmt.Errorf("malformed status response from test service: %s", string(respData))
			}
			return TestServiceInfo{TestServiceInfoBase: base, FullData: respData}, nil
		}
		if !time.Now().Before(deadline) {
			fmt.Fprintln(output)
			return TestServiceInfo{}, fmt.Errorf("timed out, result of last query was: %w", err)
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(output)
			return TestServiceInfo{}, ctx.Err()
		case <-time.After(statusQueryRetryInterval):
		}
	}
}

// StopService tells the test service that it should exit.
func (h *TestHarness) StopService(ctx context.Context) error {
	_, _, err := h.doRequest(ctx, http.MethodDelete, h.testServiceBaseURL, nil)
	var statusErr *ServiceStatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("service returned HTTP %d", statusErr.StatusCode)
	}
	// It's normal for the request to return an I/O error if the service immediately quit before sending a response
	return nil
}

// NewTestServiceEntity tells the test service to create a new instance of whatever kind of entity
// it manages, based on the parameters we provide. The test harness can interact with it via the
// returned TestServiceEntity. The entity is assumed to remain active inside the test service
// until we explicitly close it.
//
// The format of entityParams is defined in package servicedef; this low-level method simply
// calls json.Marshal to convert whatever it is to JSON.
func (h *TestHarness) NewTestServiceEntity(
	ctx context.Context,
	entityParams interface{},
	description string,
	logger framework.Logger,
) (*TestServiceEntity, error) {
	if logger == nil {
		logger = h.logger
	}

	data, err := json.Marshal(entityParams)
	if err != nil {
		return nil, err
	}

	logger.Printf("Creating test service entity (%s)", description)
	_, headers, err := h.doRequest(ctx, http.MethodPost, h.testServiceBaseURL, data)
	if err != nil {
		return nil, err
	}
	resourceURL := headers.Get("Location")
	if resourceURL == "" {
		return nil, errors.New("test service did not return a Location header with a resource URL")
	}
	if !strings.HasPrefix(resourceURL, "http:") && !strings.HasPrefix(resourceURL, "https:") {
		resourceURL = h.testServiceBaseURL + resourceURL
	}

	return &TestServiceEntity{
		owner:       h,
		resourceURL: resourceURL,
		logger:      logger,
	}, nil
}

// URL returns the resource URL of the entity.
func (e *TestServiceEntity) URL() string {
	return e.resourceURL
}

// Close tells the test service to dispose of this entity.
func (e *TestServiceEntity) Close(ctx context.Context) error {
	e.logger.Printf("Closing %s", e.resourceURL)
	_, _, err := e.owner.doRequest(ctx, http.MethodDelete, e.resourceURL, nil)
	if err != nil {
		e.logger.Printf("DELETE request to test service failed: %s", err)
	}
	return err
}

// SendCommand sends a command with no parameters to the test service entity.
func (e *TestServiceEntity) SendCommand(
	ctx context.Context,
	command string,
	logger framework.Logger,
	responseOut interface{},
) error {
	return e.SendCommandWithParams(
		ctx,
		map[string]interface{}{"command": command},
		logger,
		responseOut,
	)
}

// SendCommandWithParams sends a command to the test service entity. If responseOut is non-nil,
// the response body is decoded into it.
func (e *TestServiceEntity) SendCommandWithParams(
	ctx context.Context,
	allParams interface{},
	logger framework.Logger,
	responseOut interface{},
) error {
	if logger == nil {
		logger = e.logger
	}
	data, err := json.Marshal(allParams)
	if err != nil {
		return err
	}
	logger.Printf("Sending command: %s", string(data))
	body, _, err := e.owner.doRequest(ctx, http.MethodPost, e.resourceURL, data)
	if err != nil {
		return err
	}
	if responseOut != nil {
		if len(body) == 0 {
			return errors.New("expected a response body but got none")
		}
		if err = json.Unmarshal(body, responseOut); err != nil {
			return fmt.Errorf("malformed response from test service: %w", err)
		}
		logger.Printf("Response: %s", string(body))
	}
	return nil
}

// ServiceStatusError means the test service answered with a non-2xx status.
type ServiceStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *ServiceStatusError) Error() string {
	message := ""
	if e.Body != "" {
		message = " (" + e.Body + ")"
	}
	return fmt.Sprintf("test service returned error %d for %s %s%s", e.StatusCode, e.Method, e.URL, message)
}

func (h *TestHarness) doRequest(ctx context.Context, method, url string, body []byte) ([]byte, http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	var respBody []byte
	if resp.Body != nil {
		respBody, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, resp.Header, &ServiceStatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	return respBody, resp.Header, nil
}
