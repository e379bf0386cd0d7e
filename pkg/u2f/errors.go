package u2f

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the parent of every transport misconfiguration.
	ErrConfiguration = errors.New("u2f: configuration error")

	// ErrNoScrambleKey is returned when an exchange runs before a scramble key was set.
	ErrNoScrambleKey = fmt.Errorf("%w: scramble key not set", ErrConfiguration)

	// ErrNoOrigin is returned when a request is built without an origin (appId).
	ErrNoOrigin = fmt.Errorf("%w: origin is required", ErrConfiguration)

	// ErrMalformedBase64 is returned for web-safe Base64 input no encoder can produce.
	ErrMalformedBase64 = errors.New("u2f: malformed web-safe base64")
)

// UnexpectedResponseError is returned when a sign result has no string signatureData.
// The device declined, no device answered, or the carrier rejected the request.
type UnexpectedResponseError struct {
	Result *SignResult
}

func (e *UnexpectedResponseError) Error() string {
	if e.Result == nil {
		return "u2f: unexpected response: no result"
	}
	if e.Result.ErrorCode != ErrorCodeOK {
		return fmt.Sprintf("u2f: unexpected response: %s", e.Result.ErrorCode)
	}
	return fmt.Sprintf("u2f: unexpected response: signatureData is %T", e.Result.SignatureData)
}
