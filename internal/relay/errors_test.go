package relay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(ErrHTTPTransport, "fetch actor", inner)
	assert.ErrorIs(t, err, inner)

	var asErr *Error
	assert.True(t, errors.As(err, &asErr))
	assert.Equal(t, ErrHTTPTransport, asErr.Kind)
}

func TestError_RemoteStatusTruncatesBody(t *testing.T) {
	body := make([]byte, 400)
	for i := range body {
		body[i] = 'x'
	}
	err := RemoteStatusErr(503, string(body))
	assert.Contains(t, err.Error(), "remote status 503")
	assert.Contains(t, err.Error(), "...")
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "store", ErrStore.String())
	assert.Equal(t, "unknown", ErrorKind(999).String())
}
