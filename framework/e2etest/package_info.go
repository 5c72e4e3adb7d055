// Package e2etest contains a small test runner that is similar to Go's testing package, but is
// run as regular application code rather than as Go tests. The harness uses it to give each
// protocol run an ID, capture its debug output, and report results to the console or to a
// JUnit XML file.
//
// Unlike testing.T, a failure in a scope never stops the caller: a failed or skipped subtest
// returns normally to the code that called T.Run.
package e2etest
