package iso7816

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/u2f-transport/pkg/tlv"
)

func TestCommand_Encoding(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *Command
		expected string
	}{
		{
			name:     "Case 1: Header Only (No Data, No Le)",
			cmd:      NewCommand(0x00, 0xA4, 0x01, 0x02, nil, 0),
			expected: "00A40102",
		},
		{
			name: "Case 3 Short: Data, No Le",
			cmd:  NewCommand(0x00, 0xA4, 0x04, 0x00, []byte{0xA0, 0x00}, 0),
			// Lc=02, Data=A000
			expected: "00A4040002A000",
		},
		{
			name: "Case 2 Short: No Data, Le=MaxShortLe (256)",
			cmd:  NewCommand(0x00, 0xB0, 0x00, 0x00, nil, MaxShortLe),
			// Le=00 means 256 in Short mode
			expected: "00B0000000",
		},
		{
			name: "Case 4 Short: Data and Le",
			cmd:  NewCommand(0x00, 0xA4, 0x00, 0x00, []byte{0x01}, 10),
			// Lc=01, Data=01, Le=0A
			expected: "00A4000001010A",
		},
		{
			name: "Case 3 Extended: Data > MaxShortLc",
			cmd:  NewCommand(0x00, 0xA4, 0x00, 0x00, make([]byte, 260), 0),
			// Lc Extended: 00 (Flag) + 0104 (Len 260) + Data...
			expected: "00A40000000104" + hex.EncodeToString(make([]byte, 260)),
		},
		{
			name: "Case 2 Extended: No Data, Le=MaxExtendedLe (65536)",
			cmd:  NewCommand(0x00, 0xB0, 0x00, 0x00, nil, MaxExtendedLe),
			// Lc absent (00 Flag for Le) + Le Extended (0000 for 65536)
			expected: "00B00000000000",
		},
		{
			name: "Case 4 Extended: U2F authenticate shape",
			cmd:  NewCommand(0x00, 0x02, 0x03, 0x00, []byte{0xAA, 0xBB}, MaxExtendedLe),
			// 00 + Lc(0002) + Data + Le(0000)
			expected: "0002030000" + "0002" + "AABB" + "0000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotBytes, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Encoding failed: %v", err)
			}
			gotHex := strings.ToUpper(hex.EncodeToString(gotBytes))
			expectedHex := strings.ToUpper(tt.expected)

			if gotHex != expectedHex {
				dispGot := gotHex
				dispExp := expectedHex
				if len(dispGot) > 50 {
					dispGot = dispGot[:20] + "..." + dispGot[len(dispGot)-10:]
					dispExp = dispExp[:20] + "..." + dispExp[len(dispExp)-10:]
				}
				t.Errorf("Mismatch\nExpected: %s\nGot:      %s", dispExp, dispGot)
			}
		})
	}
}

func TestCommand_EncodingLimits(t *testing.T) {
	if _, err := NewCommand(0x00, 0xA4, 0x00, 0x00, make([]byte, MaxExtendedLc+1), 0).Bytes(); err == nil {
		t.Error("Expected error for oversized data field")
	}
	if _, err := NewCommand(0x00, 0xA4, 0x00, 0x00, nil, MaxExtendedLe+1).Bytes(); err == nil {
		t.Error("Expected error for oversized Ne")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    *Command
		wantErr bool
	}{
		{
			name: "Case 1",
			raw:  tlv.Hex("00 A4 04 00"),
			want: &Command{CLA: 0x00, INS: 0xA4, P1: 0x04},
		},
		{
			name: "Case 2 Short (Le=00 means 256)",
			raw:  tlv.Hex("00 B0 00 00 00"),
			want: &Command{INS: 0xB0, Ne: 256},
		},
		{
			name: "Case 3 Short",
			raw:  tlv.Hex("00 A4 04 00 02 3F 00"),
			want: &Command{INS: 0xA4, P1: 0x04, Data: []byte{0x3F, 0x00}},
		},
		{
			name: "Case 4 Short",
			raw:  tlv.Hex("80 CA 9F 7F 01 AA 10"),
			want: &Command{CLA: 0x80, INS: 0xCA, P1: 0x9F, P2: 0x7F, Data: []byte{0xAA}, Ne: 16},
		},
		{
			name: "Case 2 Extended",
			raw:  tlv.Hex("00 B0 00 00 00 01 00"),
			want: &Command{INS: 0xB0, Ne: 256},
		},
		{
			name: "Case 4 Extended",
			raw:  tlv.Hex("00 02 03 00 00 00 02 AA BB 00 00"),
			want: &Command{INS: 0x02, P1: 0x03, Data: []byte{0xAA, 0xBB}, Ne: MaxExtendedLe},
		},
		{
			name:    "Too Short",
			raw:     tlv.Hex("00 A4 04"),
			wantErr: true,
		},
		{
			name:    "Lc Mismatch",
			raw:     tlv.Hex("00 A4 04 00 05 01 02"),
			wantErr: true,
		},
		{
			name:    "Zero Extended Lc",
			raw:     tlv.Hex("00 A4 04 00 00 00 00 01"),
			wantErr: true,
		},
		{
			name:    "Dangling Extended Marker",
			raw:     tlv.Hex("00 A4 04 00 00 01"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCommand_RoundTrip(t *testing.T) {
	for _, raw := range [][]byte{
		tlv.Hex("00 A4 04 00 07 A0 00 00 00 04 10 10 00"),
		tlv.Hex("E0 01 00 00"),
		tlv.Hex("00 02 03 00 00 00 02 AA BB 00 00"),
	} {
		cmd, err := ParseCommand(raw)
		if err != nil {
			t.Fatalf("ParseCommand(%X): %v", raw, err)
		}
		got, err := cmd.Bytes()
		if err != nil {
			t.Fatalf("Bytes(): %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Errorf("Round trip mismatch: got %X, want %X", got, raw)
		}
	}
}

func TestParseResponse(t *testing.T) {
	// Raw: 01 02 03 (Data) | 90 00 (SW)
	raw := tlv.Hex("010203 9000")
	resp, err := ParseResponse(raw)

	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Errorf("Wrong data length: got %d, want 3", len(resp.Data))
	}
	if resp.Status != SW_NO_ERROR {
		t.Errorf("Wrong status: got %04X, want %04X", uint16(resp.Status), uint16(SW_NO_ERROR))
	}
	if !bytes.Equal(resp.Bytes(), raw) {
		t.Errorf("Bytes() = %X, want %X", resp.Bytes(), raw)
	}
}

func TestParseResponse_TooShort(t *testing.T) {
	if _, err := ParseResponse([]byte{0x90}); err == nil {
		t.Error("Expected error for short response, got nil")
	}
}
