package u2f

import (
	"encoding/base64"
	"fmt"
	"strings"
)

var (
	toWebSafeReplacer   = strings.NewReplacer("+", "-", "/", "_")
	fromWebSafeReplacer = strings.NewReplacer("-", "+", "_", "/")
)

// ToWebSafe converts standard Base64 to the URL-safe alphabet and strips the padding.
func ToWebSafe(std string) string {
	return strings.TrimRight(toWebSafeReplacer.Replace(std), "=")
}

// FromWebSafe converts web-safe Base64 back to standard Base64 and restores the padding.
// A length of 1 modulo 4 cannot come out of an encoder and is rejected.
func FromWebSafe(ws string) (string, error) {
	std := fromWebSafeReplacer.Replace(ws)

	switch len(std) % 4 {
	case 0:
		return std, nil
	case 2:
		return std + "==", nil
	case 3:
		return std + "=", nil
	default:
		return "", fmt.Errorf("%w: length %d", ErrMalformedBase64, len(ws))
	}
}

// EncodeWebSafe encodes data as web-safe Base64.
func EncodeWebSafe(data []byte) string {
	return ToWebSafe(base64.StdEncoding.EncodeToString(data))
}

// DecodeWebSafe decodes web-safe Base64.
func DecodeWebSafe(ws string) ([]byte, error) {
	std, err := FromWebSafe(ws)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}
	return data, nil
}
