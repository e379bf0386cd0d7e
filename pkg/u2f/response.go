package u2f

import (
	"fmt"

	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/transport"
)

// ResponseHeaderLen is the size of the header a U2F authentication response puts ahead of
// the signature: one user presence byte and a 4-byte big-endian counter.
const ResponseHeaderLen = 5

// ErrorCode is the errorCode field of a failed U2F sign result.
type ErrorCode int

const (
	ErrorCodeOK                       ErrorCode = 0
	ErrorCodeOtherError               ErrorCode = 1
	ErrorCodeBadRequest               ErrorCode = 2
	ErrorCodeConfigurationUnsupported ErrorCode = 3
	ErrorCodeDeviceIneligible         ErrorCode = 4
	ErrorCodeTimeout                  ErrorCode = 5
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeOK:
		return "OK"
	case ErrorCodeOtherError:
		return "OTHER_ERROR"
	case ErrorCodeBadRequest:
		return "BAD_REQUEST"
	case ErrorCodeConfigurationUnsupported:
		return "CONFIGURATION_UNSUPPORTED"
	case ErrorCodeDeviceIneligible:
		return "DEVICE_INELIGIBLE"
	case ErrorCodeTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// SignResult is what the signing ceremony returns. SignatureData holds a web-safe Base64
// string on success; any other value signals a failure.
type SignResult struct {
	SignatureData any       `json:"signatureData,omitempty"`
	ClientData    string    `json:"clientData,omitempty"`
	KeyHandle     string    `json:"keyHandle,omitempty"`
	ErrorCode     ErrorCode `json:"errorCode,omitempty"`
}

// DecodeResponse extracts the APDU response from a sign result.
// With a non-nil allowed list the trailing status word must be part of it.
// The returned slice starts after the U2F header and keeps the status word.
func DecodeResponse(result *SignResult, allowed []iso7816.StatusWord) ([]byte, error) {
	if result == nil {
		return nil, &UnexpectedResponseError{}
	}

	signature, ok := result.SignatureData.(string)
	if !ok {
		return nil, &UnexpectedResponseError{Result: result}
	}

	data, err := DecodeWebSafe(signature)
	if err != nil {
		return nil, fmt.Errorf("u2f: decode signatureData: %w", err)
	}

	if err := transport.CheckStatus(data, allowed); err != nil {
		return nil, err
	}

	if len(data) < ResponseHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes, header is %d", transport.ErrShortResponse, len(data), ResponseHeaderLen)
	}
	return data[ResponseHeaderLen:], nil
}
