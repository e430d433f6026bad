package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("too many requests")

	// ErrMalformedField marks a required field present with the wrong type.
	ErrMalformedField = errors.New("malformed field")
)

// Codes carried by the error envelope.
const (
	codeValidation  = "validation_error"
	codeNotFound    = "not_found"
	codeRender      = "render_error"
	codeInternal    = "internal_error"
	codeRateLimited = "rate_limited"
	codeBadRequest  = "bad_request"
)
