// Package tlv provides hex helpers and a BER-TLV dump for the payloads carried in APDU responses.
package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex constructs a byte slice from a series of hex strings.
// Whitespace is ignored so fixtures can be written as "00 A4 04 00".
// It panics on invalid input and is meant for constants and tests.
func Hex(parts ...string) []byte {
	data, err := ParseHex(parts...)
	if err != nil {
		panic(err.Error())
	}
	return data
}

// ParseHex is the error-returning form of Hex.
func ParseHex(parts ...string) ([]byte, error) {
	cleanHex := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(cleanHex)
	if err != nil {
		return nil, fmt.Errorf("invalid input '%s': %w", cleanHex, err)
	}
	return data, nil
}
