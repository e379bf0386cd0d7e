package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/tlv"
)

type echoTransport struct {
	closed bool
	last   []byte
}

func (e *echoTransport) Exchange(_ context.Context, apdu []byte, allowed []iso7816.StatusWord) ([]byte, error) {
	e.last = apdu
	resp := append(append([]byte{}, apdu...), 0x90, 0x00)
	if err := CheckStatus(resp, allowed); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *echoTransport) Close() error {
	e.closed = true
	return nil
}

func TestCheckStatus(t *testing.T) {
	resp := tlv.Hex("0102 9000")

	tests := []struct {
		name       string
		resp       []byte
		allowed    []iso7816.StatusWord
		wantStatus string // empty means no StatusError expected
		wantErr    bool
	}{
		{name: "Nil List Skips", resp: resp, allowed: nil},
		{name: "Nil List Skips Short Response", resp: nil, allowed: nil},
		{name: "Allowed", resp: resp, allowed: []iso7816.StatusWord{0x6985, iso7816.SW_NO_ERROR}},
		{name: "Rejected", resp: resp, allowed: []iso7816.StatusWord{0x6A80}, wantStatus: "9000", wantErr: true},
		{name: "Empty List Rejects", resp: resp, allowed: []iso7816.StatusWord{}, wantStatus: "9000", wantErr: true},
		{name: "Too Short", resp: []byte{0x90}, allowed: []iso7816.StatusWord{0x9000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStatus(tt.resp, tt.allowed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantStatus == "" {
				return
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("error %v is not a *StatusError", err)
			}
			if !strings.Contains(err.Error(), tt.wantStatus) {
				t.Errorf("error %q does not mention %s", err, tt.wantStatus)
			}
		})
	}
}

func TestCheckStatus_ShortIsSentinel(t *testing.T) {
	err := CheckStatus([]byte{0x01}, []iso7816.StatusWord{0x9000})
	if !errors.Is(err, ErrShortResponse) {
		t.Errorf("error = %v, want ErrShortResponse", err)
	}
}

func TestExchangeHex(t *testing.T) {
	tr := &echoTransport{}

	if _, err := ExchangeHex(context.Background(), tr, "E0 01", []iso7816.StatusWord{0x9000}); err == nil {
		t.Fatal("expected error for hex containing spaces")
	}

	got, err := ExchangeHex(context.Background(), tr, "e001", []iso7816.StatusWord{0x9000})
	if err != nil {
		t.Fatalf("ExchangeHex() error: %v", err)
	}
	if got != "e0019000" {
		t.Errorf("ExchangeHex() = %q, want %q", got, "e0019000")
	}

	if _, err := ExchangeHex(context.Background(), tr, "e001", []iso7816.StatusWord{0x6A80}); err == nil {
		t.Error("expected status error")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	echo := &echoTransport{}

	reg.Register("pcsc", func(context.Context) (Transport, error) { return echo, nil })
	reg.Register("u2f", func(context.Context) (Transport, error) { return nil, errors.New("no device") })

	if diff := cmp.Diff([]string{"pcsc", "u2f"}, reg.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	tr, err := reg.Open(context.Background(), "pcsc")
	if err != nil {
		t.Fatalf("Open(pcsc) error: %v", err)
	}
	if tr != echo {
		t.Error("Open(pcsc) returned the wrong transport")
	}

	if _, err := reg.Open(context.Background(), "u2f"); err == nil || !strings.Contains(err.Error(), "no device") {
		t.Errorf("Open(u2f) error = %v", err)
	}

	if _, err := reg.Open(context.Background(), "hid"); err == nil {
		t.Error("Open(hid) expected unknown transport error")
	}
}
