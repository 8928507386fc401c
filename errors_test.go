package mqtt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrorsWrapWithFmt(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrBadArg)
	assert.ErrorIs(t, wrapped, ErrBadArg)
	assert.NotErrorIs(t, wrapped, ErrNotConnected)
}

func TestProtocolErrorUnwrapAndMessage(t *testing.T) {
	pe := &ProtocolError{Kind: ErrConnectFail, Reason: ConnRefusedServerUnavailable}
	assert.ErrorIs(t, pe, ErrConnectFail)
	assert.Contains(t, pe.Error(), "server unavailable")

	withDetail := &ProtocolError{Kind: ErrMQTTError, Reason: ConnAccepted, Detail: "SUBACK status count mismatch"}
	assert.Contains(t, withDetail.Error(), "SUBACK status count mismatch")
}

func TestConnectRefusedReasonString(t *testing.T) {
	cases := map[ConnectRefusedReason]string{
		ConnAccepted:                     "accepted",
		ConnRefusedUnacceptableProtocol:  "unacceptable protocol version",
		ConnRefusedIdentifierRejected:    "identifier rejected",
		ConnRefusedServerUnavailable:     "server unavailable",
		ConnRefusedBadUsernameOrPassword: "bad username or password",
		ConnRefusedNotAuthorized:         "not authorized",
	}
	for reason, want := range cases {
		assert.Equal(t, want, reason.String())
	}
	assert.Contains(t, ConnectRefusedReason(99).String(), "unknown")
}

func TestErrorsAsRecoversProtocolError(t *testing.T) {
	var err error = fmt.Errorf("connect: %w", &ProtocolError{Kind: ErrConnectFail, Reason: ConnRefusedIdentifierRejected})

	var pe *ProtocolError
	require := errors.As(err, &pe)
	assert.True(t, require)
	assert.Equal(t, ConnRefusedIdentifierRejected, pe.Reason)
}
