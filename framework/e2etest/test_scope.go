package e2etest

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/iotlab/iothub-test-harness/framework"
)

type environment struct {
	config  TestConfiguration
	results Results
	lock    sync.Mutex
}

func (e *environment) record(result TestResult) {
	e.lock.Lock()
	defer e.lock.Unlock()
	switch {
	case result.Skipped:
		e.results.Skipped = append(e.results.Skipped, result)
	case result.Failed:
		e.results.Failures = append(e.results.Failures, result)
	}
	e.results.Tests = append(e.results.Tests, result)
}

// T represents a test scope. It is very similar to Go's testing.T type.
type T struct {
	env         *environment
	id          TestID
	debugLogger framework.CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	cleanups    []func()
	errors      []error
}

// TestConfiguration contains options for the entire test run.
type TestConfiguration struct {
	// Filter is an optional filter for determining which tests to run based on their IDs.
	Filter Filter

	// TestLogger receives status information about each test.
	TestLogger TestLogger
}

// Run starts a top-level test scope, runs the action in it, and returns the results of the
// whole run including the top-level scope itself.
func Run(config TestConfiguration, action func(*T)) Results {
	t := NewRoot(config)
	result := t.run(action)
	t.env.record(result)
	return t.Results()
}

// NewRoot creates a top-level test scope without running anything in it. This is for callers
// that interleave subtests with their own non-test logic; each t.Run is recorded as it
// finishes, and Results can be read at any point.
func NewRoot(config TestConfiguration) *T {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	return &T{env: &environment{config: config}}
}

// Results returns a snapshot of the results recorded so far in this run.
func (t *T) Results() Results {
	t.env.lock.Lock()
	defer t.env.lock.Unlock()
	r := t.env.results
	return Results{
		Tests:    append([]TestResult(nil), r.Tests...),
		Failures: append([]TestResult(nil), r.Failures...),
		Skipped:  append([]TestResult(nil), r.Skipped...),
	}
}

func (t *T) run(action func(*T)) (result TestResult) {
	result.TestID = t.id
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil && !t.skipped {
			t.failed = true
			var addError error
			if _, ok := r.(*T); ok {
				if len(t.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				t.errors = append(t.errors, addError)
				t.env.config.TestLogger.TestError(t.id, addError)
			}
		}
		for i := len(t.cleanups) - 1; i >= 0; i-- {
			t.cleanups[i]()
		}
		result.Errors = t.errors
		result.Failed = t.failed
		result.Skipped = t.skipped
		result.SkipReason = t.skipReason
		result.Duration = time.Since(startTime)
	}()

	action(t)
	return result
}

// Scope returns a scope nested under t that subtests can be run in. Unlike Run it does not
// call an action, and the returned scope is never recorded as a test of its own.
func (t *T) Scope(name string) *T {
	return &T{id: t.id.Plus(name), env: t.env}
}

// ID returns the full name of the current test.
func (t *T) ID() TestID {
	return t.id
}

// Run runs a subtest in its own scope and returns its result. A failed or skipped subtest never
// causes the caller to stop.
//
// If the filter in the TestConfiguration excludes the subtest, the action is not called and the
// result is marked as skipped.
func (t *T) Run(name string, action func(*T)) TestResult {
	id := t.id.Plus(name)

	t.env.config.TestLogger.TestStarted(id)
	if t.env.config.Filter != nil && !t.env.config.Filter.Match(id) {
		result := TestResult{TestID: id, Skipped: true, SkipReason: "excluded by filter parameters"}
		t.env.config.TestLogger.TestSkipped(id, result.SkipReason)
		t.env.record(result)
		return result
	}
	c1 := &T{
		id:  id,
		env: t.env,
	}
	t.debugLogger.AddChildLogger(&c1.debugLogger)
	result := c1.run(action)
	t.debugLogger.RemoveChildLogger(&c1.debugLogger)
	if c1.skipped {
		t.env.config.TestLogger.TestSkipped(id, c1.skipReason)
	} else {
		t.env.config.TestLogger.TestFinished(id, result, c1.debugLogger.Output())
	}
	t.env.record(result)
	return result
}

// Errorf reports a test failure. It does not cause the test to terminate, but adds the failure
// message to the output and marks the test as failed.
//
// This is part of this type's implementation of assert.TestingT, so testify assertions can be
// used inside a scope.
func (t *T) Errorf(format string, args ...interface{}) {
	t.Fail(fmt.Errorf(format, args...))
}

// Fail marks the test as failed with the given error, which is kept as-is in the results.
func (t *T) Fail(err error) {
	t.failed = true
	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// Failed returns true if the test has been marked as failed.
func (t *T) Failed() bool {
	return t.failed
}

// FailNow causes the test to immediately terminate and be marked as failed.
func (t *T) FailNow() {
	t.failed = true
	panic(t)
}

// Skip causes the test to immediately terminate and be marked as skipped.
func (t *T) Skip() {
	t.skipped = true
	panic(t)
}

// SkipWithReason is equivalent to Skip but provides a message.
func (t *T) SkipWithReason(reason string) {
	t.skipReason = reason
	t.Skip()
}

// Debug writes a message to the output for this test scope.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns a Logger for writing output for this test scope. The output is passed to
// TestLogger.TestFinished at the end of the test, which decides whether to display it.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Defer schedules a cleanup function which is guaranteed to be called when this test scope
// exits for any reason.
func (t *T) Defer(cleanupFn func()) {
	t.cleanups = append(t.cleanups, cleanupFn)
}
