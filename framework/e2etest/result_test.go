package e2etest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestIDString(t *testing.T) {
	assert.Equal(t, "", TestID{}.String())
	assert.Equal(t, "protocols", TestID{"protocols"}.String())
	assert.Equal(t, "protocols/AMQP-WS", TestID{"protocols", "AMQP-WS"}.String())
}

func TestTestIDPlus(t *testing.T) {
	assert.Equal(t, TestID{"name 1"}, TestID{}.Plus("name 1"))
	assert.Equal(t, TestID{"name 1", "name 2"}, TestID{}.Plus("name 1").Plus("name 2"))

	// Plus does not modify the original value
	id1 := TestID{"name 1"}
	id2a := id1.Plus("name 2a")
	id2b := id1.Plus("name 2b")
	assert.Equal(t, TestID{"name 1"}, id1)
	assert.Equal(t, TestID{"name 1", "name 2a"}, id2a)
	assert.Equal(t, TestID{"name 1", "name 2b"}, id2b)
}

func TestTestFailure(t *testing.T) {
	cause := errors.New("timed out")
	f := TestFailure{ID: TestID{"protocols", "MQTT"}, Err: cause}
	assert.Equal(t, "[protocols/MQTT]: timed out", f.Error())
	assert.ErrorIs(t, f, cause)
}
