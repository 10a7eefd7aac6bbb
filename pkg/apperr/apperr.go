// Package apperr defines the protocol error taxonomy. Every error a caller
// can observe is an *Error with a machine-readable code; the HTTP status
// is derived from the code at the transport boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Type string

const (
	TypeInvalidRequest   Type = "invalid_request"
	TypeNotFound         Type = "not_found"
	TypeConflict         Type = "conflict"
	TypeMethodNotAllowed Type = "method_not_allowed"
	TypeAPIError         Type = "api_error"
)

type Code string

const (
	CodeMissingAPIVersion        Code = "missing_api_version"
	CodeUnsupportedAPIVersion    Code = "unsupported_api_version"
	CodeMissingAuthorization     Code = "missing_authorization"
	CodeInvalidAuthorization     Code = "invalid_authorization"
	CodeMissingSignature         Code = "missing_signature"
	CodeInvalidSignature         Code = "invalid_signature"
	CodeMalformedJSON            Code = "malformed_json"
	CodeInvalidField             Code = "invalid_field"
	CodeRequestNotIdempotent     Code = "request_not_idempotent"
	CodeRequestInProgress        Code = "request_in_progress"
	CodeSessionNotFound          Code = "session_not_found"
	CodeSessionTerminal          Code = "session_terminal"
	CodeNotReady                 Code = "not_ready"
	CodeAlreadyTerminal          Code = "already_terminal"
	CodeOutOfStock               Code = "out_of_stock"
	CodeInvalidFulfillmentOption Code = "invalid_fulfillment_option"
	CodePaymentDeclined          Code = "payment_declined"
	CodeInvalidAmount            Code = "invalid_amount"
	CodeInvalidCard              Code = "invalid_card"
	CodeTokenNotFound            Code = "token_not_found"
	CodeProductNotFound          Code = "product_not_found"
	CodeRatingsUnavailable       Code = "ratings_unavailable"
	CodeInsufficientProducts     Code = "insufficient_products"
	CodeInternal                 Code = "internal_error"
)

type kind struct {
	status int
	typ    Type
}

var codeKinds = map[Code]kind{
	CodeMissingAPIVersion:        {http.StatusBadRequest, TypeInvalidRequest},
	CodeUnsupportedAPIVersion:    {http.StatusBadRequest, TypeInvalidRequest},
	CodeMissingAuthorization:     {http.StatusUnauthorized, TypeInvalidRequest},
	CodeInvalidAuthorization:     {http.StatusUnauthorized, TypeInvalidRequest},
	CodeMissingSignature:         {http.StatusUnauthorized, TypeInvalidRequest},
	CodeInvalidSignature:         {http.StatusUnauthorized, TypeInvalidRequest},
	CodeMalformedJSON:            {http.StatusBadRequest, TypeInvalidRequest},
	CodeInvalidField:             {http.StatusBadRequest, TypeInvalidRequest},
	CodeRequestNotIdempotent:     {http.StatusConflict, TypeInvalidRequest},
	CodeRequestInProgress:        {http.StatusConflict, TypeInvalidRequest},
	CodeSessionNotFound:          {http.StatusNotFound, TypeNotFound},
	CodeSessionTerminal:          {http.StatusConflict, TypeConflict},
	CodeNotReady:                 {http.StatusConflict, TypeConflict},
	CodeAlreadyTerminal:          {http.StatusMethodNotAllowed, TypeMethodNotAllowed},
	CodeOutOfStock:               {http.StatusConflict, TypeInvalidRequest},
	CodeInvalidFulfillmentOption: {http.StatusBadRequest, TypeInvalidRequest},
	CodePaymentDeclined:          {http.StatusPaymentRequired, TypeInvalidRequest},
	CodeInvalidAmount:            {http.StatusUnprocessableEntity, TypeInvalidRequest},
	CodeInvalidCard:              {http.StatusBadRequest, TypeInvalidRequest},
	CodeTokenNotFound:            {http.StatusNotFound, TypeNotFound},
	CodeProductNotFound:          {http.StatusNotFound, TypeNotFound},
	CodeRatingsUnavailable:       {http.StatusNotFound, TypeNotFound},
	CodeInsufficientProducts:     {http.StatusUnprocessableEntity, TypeInvalidRequest},
	CodeInternal:                 {http.StatusInternalServerError, TypeAPIError},
}

// Error is the body of every protocol error response.
type Error struct {
	Type    Type   `json:"type"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// Envelope is the wire shape: {"error": {...}}.
type Envelope struct {
	Error *Error `json:"error"`
}

func New(code Code, message string) *Error {
	k, ok := codeKinds[code]
	if !ok {
		k = codeKinds[CodeInternal]
	}
	return &Error{Type: k.typ, Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithParam returns a copy of e pointing at the offending field.
func (e *Error) WithParam(param string) *Error {
	cp := *e
	cp.Param = param
	return &cp
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) HTTPStatus() int {
	if k, ok := codeKinds[e.Code]; ok {
		return k.status
	}
	return http.StatusInternalServerError
}

func Internal() *Error {
	return New(CodeInternal, "internal server error")
}

// As extracts a protocol error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// From returns err as a protocol error. Anything that is not already one
// collapses into internal_error so internal detail never reaches the caller.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Internal()
}

// Is reports whether err carries the given protocol code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
