package opt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deviceRep struct {
	DeviceID string `json:"deviceId"`
}

func TestNone(t *testing.T) {
	assert.False(t, None[string]().IsDefined())
	assert.Equal(t, "", None[string]().Value())
	assert.Equal(t, deviceRep{}, None[deviceRep]().Value())
	assert.Equal(t, "[none]", None[int]().String())
}

func TestSome(t *testing.T) {
	assert.True(t, Some("").IsDefined())
	assert.Equal(t, "x", Some("x").Value())
	assert.Equal(t, "x", Some("x").String())
	assert.Equal(t, "oops", Some[error](errors.New("oops")).String())
}

func TestOrElse(t *testing.T) {
	assert.Equal(t, "mqtt", None[string]().OrElse("mqtt"))
	assert.Equal(t, "amqp", Some("amqp").OrElse("mqtt"))
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		Device Maybe[deviceRep] `json:"device"`
	}

	data, err := json.Marshal(wrapper{Device: Some(deviceRep{DeviceID: "d1"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"device":{"deviceId":"d1"}}`, string(data))

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"device":null}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"device":{"deviceId":"d2"}}`), &w))
	assert.Equal(t, Some(deviceRep{DeviceID: "d2"}), w.Device)

	require.NoError(t, json.Unmarshal([]byte(`{"device":null}`), &w))
	assert.False(t, w.Device.IsDefined())

	assert.Error(t, json.Unmarshal([]byte(`{"device":true}`), &w))
}
