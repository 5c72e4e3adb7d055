// Package harness is the HTTP transport between the test harness and the test service.
package harness
