// Package ingestion is the event ingestion listener that watches the event hub receiving the
// IoT hub's device-to-cloud messages while a test run is in progress.
package ingestion

import "context"

// Listener is opened once before a run starts and closed once at teardown.
type Listener interface {
	Open(ctx context.Context, serviceConnectionString string) error
	// Close is best-effort and has no error channel.
	Close()
}

// EventCounter is implemented by listeners that can say how many events they have seen from a
// device since they were opened.
type EventCounter interface {
	EventCount(deviceID string) int
}

// NopListener is used when no events endpoint is configured. Open always succeeds.
type NopListener struct{}

func (NopListener) Open(context.Context, string) error { return nil }

func (NopListener) Close() {}
