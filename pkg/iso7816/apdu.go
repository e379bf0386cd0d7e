package iso7816

import (
	"bytes"
	"fmt"
)

// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (CLA INS P1 P2) and an optional Body
// made of Lc, the data field and Le.
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc/Le encoded on multiple bytes (Max 65535/65536).
//     Extended mode is triggered if Lc > 255 or Le > 256.
//
// RESPONSE APDU (R-APDU):
// An optional Body followed by the mandatory Trailer SW1 SW2.

// APDU Limits and Constants according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short Length mode.
	// In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536

	headerLen = 4
)

// Command represents a command sent to the device.
type Command struct {
	CLA, INS, P1, P2 byte
	Data             []byte
	Ne               int // Expected response length (0 means none)
}

// NewCommand creates a basic command.
func NewCommand(cla, ins, p1, p2 byte, data []byte, ne int) *Command {
	return &Command{
		CLA:  cla,
		INS:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
		Ne:   ne,
	}
}

// Bytes encodes the Command into its byte representation (C-APDU).
// Short or Extended encoding is selected from the length of Data (Nc) and
// the expected response length (Ne).
func (c *Command) Bytes() ([]byte, error) {
	nc := len(c.Data)
	ne := c.Ne

	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data too long: %d bytes (max %d)", nc, MaxExtendedLc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid Ne: %d", ne)
	}

	buf := new(bytes.Buffer)
	buf.Write([]byte{c.CLA, c.INS, c.P1, c.P2})

	isExtended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if !isExtended {
			buf.WriteByte(byte(nc))
		} else {
			buf.Write([]byte{0x00, byte(nc >> 8), byte(nc)})
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		if !isExtended {
			// 0x00 represents 256
			buf.WriteByte(byte(ne))
		} else {
			// Without Lc, a leading 00 distinguishes an extended Le from a short one.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			// 0x0000 represents 65536
			buf.Write([]byte{byte(ne >> 8), byte(ne)})
		}
	}

	return buf.Bytes(), nil
}

// ParseCommand decodes a raw C-APDU in any of the four cases, short or extended.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	cmd := NewCommand(raw[0], raw[1], raw[2], raw[3], nil, 0)
	body := raw[headerLen:]

	switch {
	case len(body) == 0:
		// Case 1
		return cmd, nil

	case len(body) == 1:
		// Case 2 Short
		cmd.Ne = shortLe(body[0])
		return cmd, nil

	case body[0] != 0x00:
		lc := int(body[0])
		switch len(body) {
		case 1 + lc:
			cmd.Data = body[1:]
		case 2 + lc:
			cmd.Data = body[1 : 1+lc]
			cmd.Ne = shortLe(body[1+lc])
		default:
			return nil, fmt.Errorf("body length %d inconsistent with Lc %d", len(body), lc)
		}
		return cmd, nil

	case len(body) == 3:
		// Case 2 Extended
		cmd.Ne = extendedLe(body[1], body[2])
		return cmd, nil

	case len(body) > 3:
		lc := int(body[1])<<8 | int(body[2])
		if lc == 0 {
			return nil, fmt.Errorf("extended Lc is zero")
		}
		switch len(body) {
		case 3 + lc:
			cmd.Data = body[3:]
		case 5 + lc:
			cmd.Data = body[3 : 3+lc]
			cmd.Ne = extendedLe(body[3+lc], body[4+lc])
		default:
			return nil, fmt.Errorf("body length %d inconsistent with extended Lc %d", len(body), lc)
		}
		return cmd, nil
	}

	return nil, fmt.Errorf("malformed command body: %X", body)
}

func shortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

func extendedLe(hi, lo byte) int {
	le := int(hi)<<8 | int(lo)
	if le == 0 {
		return MaxExtendedLe
	}
	return le
}

// String returns a readable representation of the command meta-data.
func (c *Command) String() string {
	return fmt.Sprintf("CLA: %02X, INS: %02X | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.CLA, c.INS, c.P1, c.P2, len(c.Data), c.Ne)
}

// Response represents the reply from the device (R-APDU).
type Response struct {
	Data   []byte
	Status StatusWord
}

// ParseResponse parses raw bytes received from the device into a Response.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2

	return &Response{
		Data:   raw[:indexSW1],
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// Bytes re-assembles the R-APDU (Data followed by SW1 SW2).
func (r *Response) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

// String returns a readable representation of the response.
func (r *Response) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
