package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe decodes BER-TLV data and renders it as an indented tree, one line per tag.
// Constructed tags list their children below them; primitive values are printed in hex,
// followed by their ASCII form when every byte is printable.
func Describe(data []byte) ([]string, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	var lines []string
	writeNodes(&lines, packets, 0)
	return lines, nil
}

func writeNodes(lines *[]string, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)

	for _, p := range packets {
		tag := strings.ToUpper(p.Tag)
		if len(p.TLVs) > 0 {
			*lines = append(*lines, fmt.Sprintf("%s- %s:", indent, tag))
			writeNodes(lines, p.TLVs, depth+1)
			continue
		}

		line := fmt.Sprintf("%s- %s: %X", indent, tag, p.Value)
		if isPrintable(p.Value) {
			line += fmt.Sprintf(" (%q)", MakeSafeASCII(p.Value))
		}
		*lines = append(*lines, line)
	}
}

func isPrintable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return true
}

// MakeSafeASCII replaces every non-printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
