package iothubtests

import "github.com/google/uuid"

// NewDeviceID returns a new, globally unique device identity for one run.
func NewDeviceID() string {
	return "device" + uuid.NewString()
}
