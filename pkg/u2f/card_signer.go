package u2f

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// userPresent is the user presence flag of a U2F authentication response.
const userPresent byte = 0x01

// Transmitter sends a raw APDU to a device and returns its raw response.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// clientData is the U2F client data of an authentication.
type clientData struct {
	Type      string `json:"typ"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// NewClientData serializes the client data a U2F client derives from req. Its SHA-256 is the
// challenge parameter sent to the authenticator, and it is reported back in SignResult.ClientData.
func NewClientData(req *SignRequest) ([]byte, error) {
	return json.Marshal(clientData{
		Type:      "navigator.id.getAssertion",
		Challenge: req.Challenge,
		Origin:    req.AppID,
	})
}

// CardSigner plays the device side of the carrier in front of a Transmitter: it recovers the
// APDU from the key handle, forwards it, and answers like a U2F authenticator whose
// signature is the device response. It lets the U2F pipeline drive a plain reader.
type CardSigner struct {
	card        Transmitter
	scrambleKey []byte

	mu      sync.Mutex
	counter uint32
}

var _ Signer = (*CardSigner)(nil)

// NewCardSigner creates a CardSigner sharing scrambleKey (ASCII) with the transport.
func NewCardSigner(card Transmitter, scrambleKey string) *CardSigner {
	return &CardSigner{card: card, scrambleKey: []byte(scrambleKey)}
}

// Sign implements Signer. Requests the device cannot take are answered with an ErrorCode,
// as an authenticator would; transmission failures are returned as errors.
func (s *CardSigner) Sign(ctx context.Context, req *SignRequest, timeout time.Duration) (*SignResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if req.Version != Version {
		return &SignResult{ErrorCode: ErrorCodeBadRequest}, nil
	}

	keyHandle, err := DecodeWebSafe(req.KeyHandle)
	if err != nil {
		return &SignResult{ErrorCode: ErrorCodeBadRequest}, nil
	}

	apdu, err := Obfuscate(keyHandle, s.scrambleKey)
	if err != nil {
		return &SignResult{ErrorCode: ErrorCodeDeviceIneligible}, nil
	}

	cd, err := NewClientData(req)
	if err != nil {
		return nil, fmt.Errorf("u2f: client data: %w", err)
	}

	resp, err := s.transmit(ctx, apdu)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.counter++
	counter := s.counter
	s.mu.Unlock()

	signature := make([]byte, ResponseHeaderLen, ResponseHeaderLen+len(resp))
	signature[0] = userPresent
	binary.BigEndian.PutUint32(signature[1:], counter)
	signature = append(signature, resp...)

	return &SignResult{
		SignatureData: EncodeWebSafe(signature),
		ClientData:    EncodeWebSafe(cd),
		KeyHandle:     req.KeyHandle,
	}, nil
}

// transmit runs the blocking Transmit call and gives up when ctx is done.
func (s *CardSigner) transmit(ctx context.Context, apdu []byte) ([]byte, error) {
	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		resp, err := s.card.Transmit(apdu)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("u2f: transmit: %w", r.err)
		}
		return r.resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("u2f: sign: %w", ctx.Err())
	}
}
