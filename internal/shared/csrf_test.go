package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	m := NewCSRFManager("test-secret")
	sess := &Session{ID: "sid-1"}

	token, err := m.TokenFor(sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, m.VerifyToken(sess, token))
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("test-secret")

	token, err := m.TokenFor(&Session{ID: "sid-1"})
	require.NoError(t, err)

	err = m.VerifyToken(&Session{ID: "sid-2"}, token)
	assert.ErrorIs(t, err, ErrCSRFTokenMismatch)
}

func TestCSRFTokenMissing(t *testing.T) {
	m := NewCSRFManager("test-secret")
	sess := &Session{ID: "sid-1"}

	assert.ErrorIs(t, m.VerifyToken(sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(nil, "tok"), ErrCSRFTokenMissing)
}
