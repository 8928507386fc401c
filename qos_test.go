package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQoSString(t *testing.T) {
	assert.Equal(t, "QoS0", QoS0.String())
	assert.Equal(t, "QoS1", QoS1.String())
	assert.Equal(t, "QoS2", QoS2.String())
	assert.Equal(t, "INVALID", QoSInvalid.String())
	assert.Equal(t, "INVALID", QoS(5).String())
}

func TestSubackStatus(t *testing.T) {
	assert.Equal(t, QoS0, subackStatus(0x00))
	assert.Equal(t, QoS1, subackStatus(0x01))
	assert.Equal(t, QoS2, subackStatus(0x02))
	assert.Equal(t, QoSInvalid, subackStatus(0x80))
}
