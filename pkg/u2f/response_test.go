package u2f

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/tlv"
	"github.com/gregLibert/u2f-transport/pkg/transport"
)

func resultOf(raw []byte) *SignResult {
	return &SignResult{SignatureData: EncodeWebSafe(raw)}
}

func TestDecodeResponse(t *testing.T) {
	header := "01 00000007"

	tests := []struct {
		name       string
		result     *SignResult
		allowed    []iso7816.StatusWord
		want       []byte
		wantStatus string
	}{
		{
			name:    "Allowed Status",
			result:  resultOf(tlv.Hex(header, "9000")),
			allowed: []iso7816.StatusWord{0x9000},
			want:    tlv.Hex("9000"),
		},
		{
			name:    "Payload Keeps Status Word",
			result:  resultOf(tlv.Hex(header, "CAFE 9000")),
			allowed: []iso7816.StatusWord{0x6985, 0x9000},
			want:    tlv.Hex("CAFE 9000"),
		},
		{
			name:   "No Allow-List Skips Validation",
			result: resultOf(tlv.Hex(header, "CAFE 6A80")),
			want:   tlv.Hex("CAFE 6A80"),
		},
		{
			name:       "Rejected Status",
			result:     resultOf(tlv.Hex(header, "9000")),
			allowed:    []iso7816.StatusWord{0x6A80},
			wantStatus: "9000",
		},
		{
			name:       "Empty Allow-List Rejects",
			result:     resultOf(tlv.Hex(header, "9000")),
			allowed:    []iso7816.StatusWord{},
			wantStatus: "9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse(tt.result, tt.allowed)

			if tt.wantStatus != "" {
				var statusErr *transport.StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("error = %v, want *transport.StatusError", err)
				}
				if !strings.Contains(err.Error(), tt.wantStatus) {
					t.Errorf("error %q does not mention %s", err, tt.wantStatus)
				}
				return
			}

			if err != nil {
				t.Fatalf("DecodeResponse() error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeResponse() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestDecodeResponse_Unexpected(t *testing.T) {
	tests := []struct {
		name    string
		result  *SignResult
		message string
	}{
		{name: "Number", result: &SignResult{SignatureData: 42.0}, message: "float64"},
		{name: "Missing", result: &SignResult{}, message: "<nil>"},
		{name: "Error Code", result: &SignResult{ErrorCode: ErrorCodeTimeout}, message: "TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.result, []iso7816.StatusWord{0x9000})

			var unexpected *UnexpectedResponseError
			if !errors.As(err, &unexpected) {
				t.Fatalf("error = %v, want *UnexpectedResponseError", err)
			}
			if unexpected.Result != tt.result {
				t.Error("error does not carry the raw result")
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not contain %q", err, tt.message)
			}
		})
	}

	if _, err := DecodeResponse(nil, nil); err == nil {
		t.Error("nil result should fail")
	}
}

func TestDecodeResponse_FromHostJSON(t *testing.T) {
	var result SignResult
	if err := json.Unmarshal([]byte(`{"signatureData": 12}`), &result); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}

	var unexpected *UnexpectedResponseError
	if _, err := DecodeResponse(&result, nil); !errors.As(err, &unexpected) {
		t.Errorf("error = %v, want *UnexpectedResponseError", err)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	if _, err := DecodeResponse(&SignResult{SignatureData: "AQIDB"}, nil); !errors.Is(err, ErrMalformedBase64) {
		t.Errorf("error = %v, want ErrMalformedBase64", err)
	}

	// Status word present but no room for the U2F header.
	short := resultOf(tlv.Hex("01 9000"))
	if _, err := DecodeResponse(short, []iso7816.StatusWord{0x9000}); !errors.Is(err, transport.ErrShortResponse) {
		t.Errorf("error = %v, want ErrShortResponse", err)
	}

	if _, err := DecodeResponse(resultOf([]byte{0x90}), []iso7816.StatusWord{0x9000}); !errors.Is(err, transport.ErrShortResponse) {
		t.Errorf("error = %v, want ErrShortResponse", err)
	}
}

func TestErrorCode_String(t *testing.T) {
	if got := ErrorCodeDeviceIneligible.String(); got != "DEVICE_INELIGIBLE" {
		t.Errorf("String() = %q", got)
	}
	if got := ErrorCode(9).String(); got != "ErrorCode(9)" {
		t.Errorf("String() = %q", got)
	}
}
