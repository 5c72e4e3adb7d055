// Package connstr parses the semicolon-delimited key=value connection strings used by IoT hub
// and Event Hubs, such as
//
//	HostName=myhub.azure-devices.net;SharedAccessKeyName=iothubowner;SharedAccessKey=abc=
//	HostName=myhub.azure-devices.net;DeviceId=device1;SharedAccessKey=abc=
//	Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=abc=;EntityPath=myhub
package connstr

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Well-known keys.
const (
	KeyHostName            = "HostName"
	KeyDeviceID            = "DeviceId"
	KeySharedAccessKeyName = "SharedAccessKeyName"
	KeySharedAccessKey     = "SharedAccessKey"
	KeyEndpoint            = "Endpoint"
	KeyEntityPath          = "EntityPath"
)

var ErrEmpty = errors.New("connection string is empty")

// Values is a parsed connection string. Keys are matched case-insensitively.
type Values map[string]string

// Parse splits a connection string into its key=value pairs. Values may themselves contain
// '=' characters (base64 keys usually do); only the first '=' in each pair separates the key.
func Parse(s string) (Values, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	ret := make(Values)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed connection string segment %q", part)
		}
		ret[strings.ToLower(key)] = value
	}
	return ret, nil
}

// Get returns the value for a key, or "" if it is absent.
func (v Values) Get(key string) string {
	return v[strings.ToLower(key)]
}

func (v Values) require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if v.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) != 0 {
		return fmt.Errorf("connection string is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Service is an IoT hub service (shared access policy) connection string.
type Service struct {
	HostName            string
	SharedAccessKeyName string
	SharedAccessKey     string
}

// HubName is the first label of the host name, e.g. "myhub" for myhub.azure-devices.net.
func (s Service) HubName() string {
	name, _, _ := strings.Cut(s.HostName, ".")
	return name
}

func ParseService(s string) (Service, error) {
	v, err := Parse(s)
	if err != nil {
		return Service{}, err
	}
	if err := v.require(KeyHostName, KeySharedAccessKeyName, KeySharedAccessKey); err != nil {
		return Service{}, err
	}
	return Service{
		HostName:            v.Get(KeyHostName),
		SharedAccessKeyName: v.Get(KeySharedAccessKeyName),
		SharedAccessKey:     v.Get(KeySharedAccessKey),
	}, nil
}

// Device is an IoT hub device connection string.
type Device struct {
	HostName        string
	DeviceID        string
	SharedAccessKey string
}

func ParseDevice(s string) (Device, error) {
	v, err := Parse(s)
	if err != nil {
		return Device{}, err
	}
	if err := v.require(KeyHostName, KeyDeviceID, KeySharedAccessKey); err != nil {
		return Device{}, err
	}
	return Device{
		HostName:        v.Get(KeyHostName),
		DeviceID:        v.Get(KeyDeviceID),
		SharedAccessKey: v.Get(KeySharedAccessKey),
	}, nil
}

// EventHub is an Event Hubs connection string, in the same form the portal shows for an event
// hub or for the built-in events endpoint of an IoT hub.
type EventHub struct {
	// Raw is the original string, which the Kafka endpoint expects as the SASL password.
	Raw                 string
	Namespace           string
	SharedAccessKeyName string
	SharedAccessKey     string
	EntityPath          string
}

func ParseEventHub(s string) (EventHub, error) {
	v, err := Parse(s)
	if err != nil {
		return EventHub{}, err
	}
	if err := v.require(KeyEndpoint, KeySharedAccessKeyName, KeySharedAccessKey); err != nil {
		return EventHub{}, err
	}
	endpoint, err := url.Parse(v.Get(KeyEndpoint))
	if err != nil || endpoint.Host == "" {
		return EventHub{}, fmt.Errorf("invalid Endpoint %q in connection string", v.Get(KeyEndpoint))
	}
	return EventHub{
		Raw:                 strings.TrimSpace(s),
		Namespace:           endpoint.Hostname(),
		SharedAccessKeyName: v.Get(KeySharedAccessKeyName),
		SharedAccessKey:     v.Get(KeySharedAccessKey),
		EntityPath:          v.Get(KeyEntityPath),
	}, nil
}

// Redact replaces the value of every SharedAccessKey in a connection string so that it can be
// written to logs. Strings that do not parse are fully redacted.
func Redact(s string) string {
	if _, err := Parse(s); err != nil {
		return "[redacted]"
	}
	parts := strings.Split(strings.TrimSpace(s), ";")
	for i, part := range parts {
		key, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(strings.TrimSpace(key), KeySharedAccessKey) {
			parts[i] = key + "=***"
		}
	}
	return strings.Join(parts, ";")
}
