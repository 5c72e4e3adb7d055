// Package iothubtests contains the end-to-end run: provisioning a temporary device, exercising
// it over every protocol binding, and tearing it down again.
//
// Tests in this package use other packages as follows:
//
// e2etest: the test scope framework, for per-protocol results
//
// ingestion: the listener that reads device events while the run is in progress
//
// protocol, registry: the collaborators that do the actual work, reached through the test service
package iothubtests
