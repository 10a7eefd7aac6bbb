// Package auth authenticates protocol requests: API version negotiation,
// bearer credential presence and the optional HMAC body signature.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/shabazpatel/acp-infra/pkg/apperr"
)

const (
	HeaderAPIVersion    = "API-Version"
	HeaderAuthorization = "Authorization"
	HeaderSignature     = "X-OpenAI-Signature"

	DefaultAPIVersion = "2026-01-30"

	bearerPrefix = "Bearer "
)

type Authenticator struct {
	versions      map[string]struct{}
	requireBearer bool
	tokens        []string
	secret        []byte
	bearerFirst   bool
}

type Option func(*Authenticator)

// WithVersions replaces the supported API-Version set.
func WithVersions(versions ...string) Option {
	return func(a *Authenticator) {
		a.versions = make(map[string]struct{}, len(versions))
		for _, v := range versions {
			if v = strings.TrimSpace(v); v != "" {
				a.versions[v] = struct{}{}
			}
		}
	}
}

// WithBearer toggles the bearer presence check.
func WithBearer(required bool) Option {
	return func(a *Authenticator) { a.requireBearer = required }
}

// WithTokens restricts accepted bearer tokens. An empty list accepts any
// non-empty token.
func WithTokens(tokens ...string) Option {
	return func(a *Authenticator) {
		for _, t := range tokens {
			if t = strings.TrimSpace(t); t != "" {
				a.tokens = append(a.tokens, t)
			}
		}
	}
}

// WithSignatureSecret enables signature verification. An empty secret
// leaves it disabled.
func WithSignatureSecret(secret string) Option {
	return func(a *Authenticator) { a.secret = []byte(secret) }
}

// WithBearerFirst checks the bearer credential before the API version.
func WithBearerFirst() Option {
	return func(a *Authenticator) { a.bearerFirst = true }
}

func New(opts ...Option) *Authenticator {
	a := &Authenticator{
		versions:      map[string]struct{}{DefaultAPIVersion: {}},
		requireBearer: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate validates headers and the exact raw body. It returns nil or
// an *apperr.Error describing the first failed check.
func (a *Authenticator) Authenticate(h http.Header, body []byte) error {
	checks := []func() *apperr.Error{
		func() *apperr.Error { return a.checkVersion(h.Get(HeaderAPIVersion)) },
		func() *apperr.Error { return a.checkBearer(h.Get(HeaderAuthorization)) },
	}
	if a.bearerFirst {
		checks[0], checks[1] = checks[1], checks[0]
	}
	checks = append(checks, func() *apperr.Error { return a.checkSignature(h.Get(HeaderSignature), body) })

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authenticator) SignatureEnabled() bool {
	return len(a.secret) > 0
}

func (a *Authenticator) checkVersion(version string) *apperr.Error {
	if version == "" {
		return apperr.New(apperr.CodeMissingAPIVersion, "Missing API-Version header").
			WithParam("$.headers.API-Version")
	}
	if _, ok := a.versions[version]; !ok {
		return apperr.Newf(apperr.CodeUnsupportedAPIVersion, "Unsupported API-Version '%s'", version).
			WithParam("$.headers.API-Version")
	}
	return nil
}

func (a *Authenticator) checkBearer(header string) *apperr.Error {
	if !a.requireBearer {
		return nil
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || strings.TrimSpace(token) == "" {
		return apperr.New(apperr.CodeMissingAuthorization, "Missing or invalid Authorization header").
			WithParam("$.headers.Authorization")
	}
	if len(a.tokens) == 0 {
		return nil
	}
	for _, allowed := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(allowed)) == 1 {
			return nil
		}
	}
	return apperr.New(apperr.CodeInvalidAuthorization, "Bearer token is not recognized").
		WithParam("$.headers.Authorization")
}

func (a *Authenticator) checkSignature(signature string, body []byte) *apperr.Error {
	if len(a.secret) == 0 {
		return nil
	}
	if signature == "" {
		return apperr.New(apperr.CodeMissingSignature, "Missing X-OpenAI-Signature header").
			WithParam("$.headers.X-OpenAI-Signature")
	}
	if !Verify(a.secret, body, signature) {
		return apperr.New(apperr.CodeInvalidSignature, "Invalid X-OpenAI-Signature").
			WithParam("$.headers.X-OpenAI-Signature")
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature with the expected value in constant time.
func Verify(secret, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
