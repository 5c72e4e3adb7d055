// Package framework contains the low-level implementation of test harness infrastructure
// that is not specific to any one kind of IoT hub test. The base package contains shared
// types such as Logger; other components are in the subpackages harness and e2etest.
//
// The general model is:
//
// 1. The test harness communicates with a test service, which wraps the device and service
// SDKs being exercised. The test service exposes a root endpoint for querying its status (GET)
// or creating some kind of entity within the test service (POST).
//
// 2. Entities such as a registry client or a device client accept commands, and are disposed
// of when the harness is done with them.
//
// 3. There is a general notion of a test scope which is similar to Go's testing.T, allowing
// pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results.
//
// The domain-specific code that knows what is being tested (package iothubtests) decides
// which entities to create, in which order, and what counts as a failure.
package framework
