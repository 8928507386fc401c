package mqtt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePublishTopic(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"empty", "", true},
		{"plain", "a/b/c", false},
		{"plus wildcard", "a/+/c", true},
		{"hash wildcard", "a/#", true},
		{"null byte", "a/\x00/b", true},
		{"too long", strings.Repeat("a", maxTopicLength+1), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePublishTopic(tc.topic)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadArg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSubscribeFilter(t *testing.T) {
	cases := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{"empty", "", true},
		{"plain", "a/b/c", false},
		{"single-level wildcard", "a/+/c", false},
		{"multi-level wildcard at end", "a/b/#", false},
		{"multi-level wildcard not last", "a/#/c", true},
		{"plus glued to text", "a/b+/c", true},
		{"hash glued to text", "a/b#", true},
		{"bare multi-level", "#", false},
		{"bare single-level", "+", false},
		{"null byte", "a/\x00", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSubscribeFilter(tc.filter)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadArg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, validatePayload([]byte("hello")))
	assert.NoError(t, validatePayload(nil))
	assert.ErrorIs(t, validatePayload(make([]byte, maxPayloadSize+1)), ErrBadArg)
}
