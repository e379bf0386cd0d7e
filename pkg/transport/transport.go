// Package transport defines the contract every APDU carrier implements and the helpers
// shared by all of them: status allow-list validation, hex exchanges and selection by name.
package transport

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gregLibert/u2f-transport/pkg/iso7816"
)

// ErrShortResponse is returned when a response is too short to carry what the carrier expects.
var ErrShortResponse = errors.New("transport: response too short")

// Transport moves APDUs to a device. Implementations must accept a nil allowed list
// as "skip status validation".
type Transport interface {
	iso7816.Exchanger
	Close() error
}

// StatusError reports a status word that is not part of the caller's allow-list.
type StatusError struct {
	Status iso7816.StatusWord
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: invalid status %s", e.Status.Hex())
}

// CheckStatus validates the trailing status word of resp against allowed.
// A nil allowed list disables the check; an empty non-nil list rejects every status.
func CheckStatus(resp []byte, allowed []iso7816.StatusWord) error {
	if allowed == nil {
		return nil
	}
	if len(resp) < 2 {
		return fmt.Errorf("%w: %d bytes, no status word", ErrShortResponse, len(resp))
	}

	sw := iso7816.StatusWord(binary.BigEndian.Uint16(resp[len(resp)-2:]))
	if !slices.Contains(allowed, sw) {
		return &StatusError{Status: sw}
	}
	return nil
}

// ExchangeHex sends a hex-encoded APDU and returns the response hex-encoded (lower case).
func ExchangeHex(ctx context.Context, t iso7816.Exchanger, apduHex string, allowed []iso7816.StatusWord) (string, error) {
	apdu, err := hex.DecodeString(strings.TrimSpace(apduHex))
	if err != nil {
		return "", fmt.Errorf("transport: invalid apdu hex: %w", err)
	}

	resp, err := t.Exchange(ctx, apdu, allowed)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(resp), nil
}
