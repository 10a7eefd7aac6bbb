package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func requireCode(t *testing.T, err error, code apperr.Code, status int) {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok, "expected protocol error, got %v", err)
	assert.Equal(t, code, e.Code)
	assert.Equal(t, status, e.HTTPStatus())
}

func TestAuthenticate_Success(t *testing.T) {
	a := New()
	err := a.Authenticate(headers(HeaderAPIVersion, DefaultAPIVersion, HeaderAuthorization, "Bearer abc"), nil)
	assert.NoError(t, err)
}

func TestAuthenticate_MissingVersion(t *testing.T) {
	err := New().Authenticate(headers(HeaderAuthorization, "Bearer abc"), nil)
	requireCode(t, err, apperr.CodeMissingAPIVersion, http.StatusBadRequest)

	e, _ := apperr.As(err)
	assert.Equal(t, "$.headers.API-Version", e.Param)
	assert.Equal(t, apperr.TypeInvalidRequest, e.Type)
}

func TestAuthenticate_UnsupportedVersion(t *testing.T) {
	err := New().Authenticate(headers(HeaderAPIVersion, "2020-01-01", HeaderAuthorization, "Bearer abc"), nil)
	requireCode(t, err, apperr.CodeUnsupportedAPIVersion, http.StatusBadRequest)
}

func TestAuthenticate_CustomVersionSet(t *testing.T) {
	a := New(WithVersions("2025-09-29", " 2026-01-30 "))
	assert.NoError(t, a.Authenticate(headers(HeaderAPIVersion, "2025-09-29", HeaderAuthorization, "Bearer x"), nil))
	assert.NoError(t, a.Authenticate(headers(HeaderAPIVersion, "2026-01-30", HeaderAuthorization, "Bearer x"), nil))
}

func TestAuthenticate_MissingBearer(t *testing.T) {
	err := New().Authenticate(headers(HeaderAPIVersion, DefaultAPIVersion), nil)
	requireCode(t, err, apperr.CodeMissingAuthorization, http.StatusUnauthorized)

	err = New().Authenticate(headers(HeaderAPIVersion, DefaultAPIVersion, HeaderAuthorization, "Basic abc"), nil)
	requireCode(t, err, apperr.CodeMissingAuthorization, http.StatusUnauthorized)
}

func TestAuthenticate_BearerDisabled(t *testing.T) {
	err := New(WithBearer(false)).Authenticate(headers(HeaderAPIVersion, DefaultAPIVersion), nil)
	assert.NoError(t, err)
}

func TestAuthenticate_TokenAllowList(t *testing.T) {
	a := New(WithTokens("good"))
	assert.NoError(t, a.Authenticate(headers(HeaderAPIVersion, DefaultAPIVersion, HeaderAuthorization, "Bearer good"), nil))

	err := a.Authenticate(headers(HeaderAPIVersion, DefaultAPIVersion, HeaderAuthorization, "Bearer bad"), nil)
	requireCode(t, err, apperr.CodeInvalidAuthorization, http.StatusUnauthorized)
}

func TestAuthenticate_OrderDefaultChecksVersionFirst(t *testing.T) {
	err := New().Authenticate(http.Header{}, nil)
	requireCode(t, err, apperr.CodeMissingAPIVersion, http.StatusBadRequest)
}

func TestAuthenticate_BearerFirst(t *testing.T) {
	err := New(WithBearerFirst()).Authenticate(http.Header{}, nil)
	requireCode(t, err, apperr.CodeMissingAuthorization, http.StatusUnauthorized)
}

func TestAuthenticate_Signature(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"items":[{"id":"p1","quantity":1}]}`)
	a := New(WithSignatureSecret(secret))
	base := func() http.Header {
		return headers(HeaderAPIVersion, DefaultAPIVersion, HeaderAuthorization, "Bearer abc")
	}

	t.Run("missing", func(t *testing.T) {
		requireCode(t, a.Authenticate(base(), body), apperr.CodeMissingSignature, http.StatusUnauthorized)
	})

	t.Run("invalid", func(t *testing.T) {
		h := base()
		h.Set(HeaderSignature, Sign([]byte("other"), body))
		requireCode(t, a.Authenticate(h, body), apperr.CodeInvalidSignature, http.StatusUnauthorized)
	})

	t.Run("body tampered", func(t *testing.T) {
		h := base()
		h.Set(HeaderSignature, Sign([]byte(secret), body))
		requireCode(t, a.Authenticate(h, append([]byte(" "), body...)), apperr.CodeInvalidSignature, http.StatusUnauthorized)
	})

	t.Run("valid", func(t *testing.T) {
		h := base()
		h.Set(HeaderSignature, Sign([]byte(secret), body))
		assert.NoError(t, a.Authenticate(h, body))
	})
}

func TestAuthenticate_NoSecretSkipsSignature(t *testing.T) {
	a := New()
	assert.False(t, a.SignatureEnabled())
	h := headers(HeaderAPIVersion, DefaultAPIVersion, HeaderAuthorization, "Bearer abc", HeaderSignature, "garbage")
	assert.NoError(t, a.Authenticate(h, []byte("{}")))
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := Sign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}
