// Package pcsc is the direct transport: APDUs go to a smart card reader through PC/SC,
// without any carrier in between.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ebfe/scard"
	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/transport"
)

// ErrNoReader is returned when no reader matches the requested name.
var ErrNoReader = errors.New("pcsc: no smart card reader found")

// Card abstracts the connected card; *scard.Card implements it.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Transport exchanges APDUs with a card over PC/SC.
type Transport struct {
	mu     sync.Mutex
	card   Card
	ctx    *scard.Context
	logger *slog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// New wraps an already connected card.
func New(card Card, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{card: card, logger: logger}
}

// Readers lists the readers known to the PC/SC service.
func Readers() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}
	defer func() {
		if err := ctx.Release(); err != nil {
			slog.Warn("pcsc: failed to release context", "error", err)
		}
	}()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("pcsc: list readers: %w", err)
	}
	return readers, nil
}

// Open connects to the first reader whose name contains reader (any reader when empty).
func Open(reader string, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}

	release := func() {
		if relErr := ctx.Release(); relErr != nil {
			logger.Warn("pcsc: failed to release context during error handling", "error", relErr)
		}
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		release()
		return nil, fmt.Errorf("pcsc: list readers: %w", err)
	}

	name, ok := pickReader(readers, reader)
	if !ok {
		release()
		return nil, ErrNoReader
	}

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		release()
		return nil, fmt.Errorf("pcsc: connect to %q: %w", name, err)
	}

	logger.Info("pcsc: connected", "reader", name)

	t := New(card, logger)
	t.ctx = ctx
	return t, nil
}

func pickReader(readers []string, want string) (string, bool) {
	for _, r := range readers {
		if want == "" || strings.Contains(r, want) {
			return r, true
		}
	}
	return "", false
}

// Transmit sends a raw APDU without status validation.
func (t *Transport) Transmit(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.card == nil {
		return nil, errors.New("pcsc: transport closed")
	}

	resp, err := t.card.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("pcsc: transmit: %w", err)
	}
	return resp, nil
}

// Exchange implements transport.Transport.
func (t *Transport) Exchange(ctx context.Context, apdu []byte, allowed []iso7816.StatusWord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := t.Transmit(apdu)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("pcsc: exchange", "command", fmt.Sprintf("%X", apdu), "response", fmt.Sprintf("%X", resp))

	if err := transport.CheckStatus(resp, allowed); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close disconnects the card and releases the PC/SC context. It is safe to call twice.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.card != nil {
		if err := t.card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, fmt.Errorf("pcsc: disconnect: %w", err))
		}
		t.card = nil
	}
	if t.ctx != nil {
		if err := t.ctx.Release(); err != nil {
			errs = append(errs, fmt.Errorf("pcsc: release context: %w", err))
		}
		t.ctx = nil
	}
	return errors.Join(errs...)
}
