package u2fhid

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/u2f"
)

const (
	// insAuthenticate is the U2F AUTHENTICATE instruction.
	insAuthenticate byte = 0x02

	// p1EnforceUserPresence asks the authenticator to require a touch and sign.
	p1EnforceUserPresence byte = 0x03

	// maxKeyHandleLen is the largest key handle the one-byte length field allows.
	maxKeyHandleLen = 255

	defaultPollInterval = 200 * time.Millisecond
)

// Signer runs the U2F signing ceremony against a HID authenticator.
type Signer struct {
	dev          *Device
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ u2f.Signer = (*Signer)(nil)

// NewSigner creates a Signer on an opened Device.
func NewSigner(dev *Device, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{dev: dev, pollInterval: defaultPollInterval, logger: logger}
}

// Close closes the underlying device.
func (s *Signer) Close() error {
	return s.dev.Close()
}

// Sign implements u2f.Signer. Malformed requests and key handles the authenticator
// does not recognize are answered with a U2F error code; an expired timeout is an error.
func (s *Signer) Sign(ctx context.Context, req *u2f.SignRequest, timeout time.Duration) (*u2f.SignResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if req.Version != u2f.Version {
		return &u2f.SignResult{ErrorCode: u2f.ErrorCodeBadRequest}, nil
	}

	keyHandle, err := u2f.DecodeWebSafe(req.KeyHandle)
	if err != nil || len(keyHandle) > maxKeyHandleLen {
		return &u2f.SignResult{ErrorCode: u2f.ErrorCodeBadRequest}, nil
	}

	clientData, err := u2f.NewClientData(req)
	if err != nil {
		return nil, fmt.Errorf("u2fhid: client data: %w", err)
	}

	msg, err := authenticateCommand(clientData, req.AppID, keyHandle)
	if err != nil {
		return nil, err
	}

	for {
		raw, err := s.dev.Message(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("u2fhid: sign: %w", ctx.Err())
			}
			return nil, err
		}

		resp, err := iso7816.ParseResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("u2fhid: %w", err)
		}

		switch resp.Status {
		case iso7816.SW_NO_ERROR:
			return &u2f.SignResult{
				SignatureData: u2f.EncodeWebSafe(resp.Data),
				ClientData:    u2f.EncodeWebSafe(clientData),
				KeyHandle:     req.KeyHandle,
			}, nil

		case iso7816.SW_ERR_COND_OF_USE_NOT_SAT:
			// Waiting for user presence.
			s.logger.Debug("u2fhid: waiting for user presence")
			select {
			case <-time.After(s.pollInterval):
			case <-ctx.Done():
				return nil, fmt.Errorf("u2fhid: sign: %w", ctx.Err())
			}

		case iso7816.SW_ERR_INCORRECT_PARAMS_DATA:
			return &u2f.SignResult{ErrorCode: u2f.ErrorCodeDeviceIneligible}, nil

		default:
			s.logger.Debug("u2fhid: authenticate failed", "status", resp.Status.Verbose())
			return &u2f.SignResult{ErrorCode: u2f.ErrorCodeOtherError}, nil
		}
	}
}

// authenticateCommand builds the U2F AUTHENTICATE message:
// challenge parameter(32) | application parameter(32) | key handle length(1) | key handle.
func authenticateCommand(clientData []byte, appID string, keyHandle []byte) ([]byte, error) {
	challengeParam := sha256.Sum256(clientData)
	appParam := sha256.Sum256([]byte(appID))

	data := make([]byte, 0, 2*sha256.Size+1+len(keyHandle))
	data = append(data, challengeParam[:]...)
	data = append(data, appParam[:]...)
	data = append(data, byte(len(keyHandle)))
	data = append(data, keyHandle...)

	// U2F raw messages use extended length encoding.
	cmd := iso7816.NewCommand(0x00, insAuthenticate, p1EnforceUserPresence, 0x00, data, iso7816.MaxExtendedLe)
	return cmd.Bytes()
}
