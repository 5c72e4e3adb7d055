package helpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type target struct {
	name  string
	count int
}

func TestApplyOptions(t *testing.T) {
	var tt target
	err := ApplyOptions(&tt,
		ConfigOptionFunc[target](func(t *target) error { t.name = "a"; return nil }),
		ConfigOptionFunc[target](func(t *target) error { t.count++; return nil }),
	)
	assert.NoError(t, err)
	assert.Equal(t, target{name: "a", count: 1}, tt)
}

func TestApplyOptionsStopsAtFirstError(t *testing.T) {
	var tt target
	fail := errors.New("bad option")
	err := ApplyOptions(&tt,
		ConfigOptionFunc[target](func(t *target) error { return fail }),
		ConfigOptionFunc[target](func(t *target) error { t.count++; return nil }),
	)
	assert.Equal(t, fail, err)
	assert.Equal(t, 0, tt.count)
}
