// Package fakeservice is an in-process test service used by the harness's own tests. It
// implements the servicedef REST protocol with canned behavior and records every call.
package fakeservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/iotlab/iothub-test-harness/framework"
	"github.com/iotlab/iothub-test-harness/servicedef"
)

// Call is one request the fake service received, after decoding.
type Call struct {
	Method   string
	EntityID string
	Kind     string
	Command  string
	DeviceID string
	Protocol string
}

type entity struct {
	params servicedef.CreateInstanceParams
}

// Service holds the canned behavior. Fields may be set before Start; after that, use the
// accessor methods.
type Service struct {
	Name         string
	Capabilities framework.Capabilities

	// CreateDeviceStatus, when non-zero, is returned for createDevice instead of success.
	CreateDeviceStatus int
	// DeleteDeviceStatus, when non-zero, is returned for deleteDevice instead of success.
	DeleteDeviceStatus int
	// IssueConnectionString, when set, replaces DeviceConnectionString for createDevice.
	IssueConnectionString func(deviceID string) string
	// TestErrors maps a protocol wire name to the error text runTest reports for it.
	TestErrors map[string]string

	entities map[string]*entity
	lastID   int
	calls    []Call
	stopped  bool
	server   *httptest.Server
	lock     sync.Mutex
}

// New returns a Service that supports every capability and passes every test.
func New() *Service {
	return &Service{
		Name: "fake-iot-sdk",
		Capabilities: framework.Capabilities{
			servicedef.CapabilityRegistry,
			servicedef.CapabilityAMQP,
			servicedef.CapabilityAMQPWS,
			servicedef.CapabilityHTTPS,
			servicedef.CapabilityMQTT,
		},
		TestErrors: map[string]string{},
		entities:   map[string]*entity{},
	}
}

// Start runs the service on a local httptest server and returns its base URL.
func (s *Service) Start() string {
	s.server = httptest.NewServer(s.Router())
	return s.server.URL
}

// Close shuts down the httptest server.
func (s *Service) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// Router returns the HTTP handler for the service.
func (s *Service) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/", s.stop).Methods(http.MethodDelete)
	r.HandleFunc("/", s.createEntity).Methods(http.MethodPost)
	r.HandleFunc("/entities/{id}", s.command).Methods(http.MethodPost)
	r.HandleFunc("/entities/{id}", s.deleteEntity).Methods(http.MethodDelete)
	return r
}

// Calls returns a copy of every call received so far.
func (s *Service) Calls() []Call {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Call(nil), s.calls...)
}

// OpenEntities returns the number of entities that were created and not yet deleted.
func (s *Service) OpenEntities() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.entities)
}

// Stopped returns true if the harness asked the service to exit.
func (s *Service) Stopped() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stopped
}

func (s *Service) record(c Call) {
	s.lock.Lock()
	s.calls = append(s.calls, c)
	s.lock.Unlock()
}

func (s *Service) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, servicedef.StatusRep{
		Name:          s.Name,
		ClientVersion: "1.0.0",
		Capabilities:  s.Capabilities,
	})
}

func (s *Service) stop(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.stopped = true
	s.lock.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) createEntity(w http.ResponseWriter, r *http.Request) {
	var params servicedef.CreateInstanceParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	call := Call{Method: r.Method}
	switch {
	case params.Registry != nil:
		call.Kind = servicedef.EntityRegistry
	case params.DeviceClient != nil:
		call.Kind = servicedef.EntityDeviceClient
		call.DeviceID = params.DeviceClient.DeviceID
		call.Protocol = params.DeviceClient.Protocol
	default:
		http.Error(w, "unknown entity kind", http.StatusBadRequest)
		return
	}

	s.lock.Lock()
	s.lastID++
	id := strconv.Itoa(s.lastID)
	s.entities[id] = &entity{params: params}
	s.lock.Unlock()

	call.EntityID = id
	s.record(call)
	w.Header().Set("Location", "/entities/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Service) deleteEntity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.lock.Lock()
	_, ok := s.entities[id]
	delete(s.entities, id)
	s.lock.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.record(Call{Method: r.Method, EntityID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) command(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.lock.Lock()
	e := s.entities[id]
	s.lock.Unlock()
	if e == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var params servicedef.CommandParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	call := Call{Method: r.Method, EntityID: id, Command: params.Command}

	switch params.Command {
	case servicedef.CommandCreateDevice:
		deviceID := params.CreateDevice.Value().DeviceID
		call.DeviceID = deviceID
		s.record(call)
		if s.CreateDeviceStatus != 0 {
			http.Error(w, "device create failed", s.CreateDeviceStatus)
			return
		}
		issue := DeviceConnectionString
		if s.IssueConnectionString != nil {
			issue = s.IssueConnectionString
		}
		writeJSON(w, http.StatusOK, servicedef.CreateDeviceResponse{
			DeviceID:         deviceID,
			ConnectionString: issue(deviceID),
		})
	case servicedef.CommandDeleteDevice:
		call.DeviceID = params.DeleteDevice.Value().DeviceID
		s.record(call)
		if s.DeleteDeviceStatus != 0 {
			http.Error(w, "device delete failed", s.DeleteDeviceStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case servicedef.CommandRunTest:
		if e.params.DeviceClient == nil {
			http.Error(w, "not a device client", http.StatusBadRequest)
			return
		}
		call.DeviceID = e.params.DeviceClient.DeviceID
		call.Protocol = e.params.DeviceClient.Protocol
		s.record(call)
		writeJSON(w, http.StatusOK, servicedef.RunTestResponse{Error: s.TestErrors[call.Protocol]})
	default:
		s.record(call)
		http.Error(w, fmt.Sprintf("unknown command %q", params.Command), http.StatusBadRequest)
	}
}

// DeviceConnectionString is the connection string the fake registry hands out for a device.
func DeviceConnectionString(deviceID string) string {
	return "HostName=fakehub.azure-devices.net;DeviceId=" + deviceID + ";SharedAccessKey=ZmFrZQ=="
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	data, _ := json.Marshal(value)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
