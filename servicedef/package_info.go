// Package servicedef contains definitions for the REST protocol that test services must
// implement. A test service wraps an IoT hub SDK: it owns the registry client and the device
// clients, and the harness drives them through this protocol.
//
// The package is used by the test harness, but can also be imported by any test service
// code that is Go-based.
package servicedef
