package e2etest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regexFilterTestParams struct {
	run         []string
	skip        []string
	testID      TestID
	shouldMatch bool
}

func TestRegexFilters(t *testing.T) {
	allParams := []regexFilterTestParams{
		// matches everything by default
		{nil, nil, TestID(nil), true},
		{nil, nil, TestID{"protocols"}, true},
		{nil, nil, TestID{"protocols", "AMQP"}, true},

		// -run with single component
		{[]string{"protocols"}, nil, TestID(nil), true},
		{[]string{"protocols"}, nil, TestID{"protocols"}, true},
		{[]string{"protocols"}, nil, TestID{"registry"}, false},
		{[]string{"protocols"}, nil, TestID{"protocols", "MQTT"}, true},

		// -run with multiple components; parents of a matching test still run
		{[]string{"protocols/^AMQP$"}, nil, TestID{"protocols"}, true},
		{[]string{"protocols/^AMQP$"}, nil, TestID{"protocols", "AMQP"}, true},
		{[]string{"protocols/^AMQP$"}, nil, TestID{"protocols", "AMQP-WS"}, false},
		{[]string{"protocols/AMQP"}, nil, TestID{"protocols", "AMQP-WS"}, true},

		// -run with multiple patterns
		{[]string{"protocols/HTTPS", "protocols/MQTT"}, nil, TestID{"protocols", "HTTPS"}, true},
		{[]string{"protocols/HTTPS", "protocols/MQTT"}, nil, TestID{"protocols", "MQTT"}, true},
		{[]string{"protocols/HTTPS", "protocols/MQTT"}, nil, TestID{"protocols", "AMQP"}, false},

		// -skip does not skip parents of a matching test
		{nil, []string{"protocols/MQTT"}, TestID{"protocols"}, true},
		{nil, []string{"protocols/MQTT"}, TestID{"protocols", "MQTT"}, false},
		{nil, []string{"protocols/MQTT"}, TestID{"protocols", "HTTPS"}, true},

		// -run and -skip together
		{[]string{"protocols"}, []string{"protocols/AMQP"}, TestID{"protocols", "AMQP"}, false},
		{[]string{"protocols"}, []string{"protocols/AMQP"}, TestID{"protocols", "HTTPS"}, true},
	}
	for _, p := range allParams {
		t.Run(fmt.Sprintf("run %v, skip %v, test %s", p.run, p.skip, p.testID), func(t *testing.T) {
			var filters RegexFilters
			for _, s := range p.run {
				require.NoError(t, filters.MustMatch.Set(s))
			}
			for _, s := range p.skip {
				require.NoError(t, filters.MustNotMatch.Set(s))
			}
			assert.Equal(t, p.shouldMatch, filters.Match(p.testID))
		})
	}
}

func TestInvalidPattern(t *testing.T) {
	var l TestIDPatternList
	assert.Error(t, l.Set("protocols/("))
	assert.False(t, l.IsDefined())
}

func TestDescribeFilters(t *testing.T) {
	var buf bytes.Buffer
	RegexFilters{}.Describe(&buf)
	assert.Empty(t, buf.String())

	var filters RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("protocols/MQTT"))
	filters.Describe(&buf)
	assert.Contains(t, buf.String(), `skip any matching "protocols/MQTT"`)
}
