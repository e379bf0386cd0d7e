package u2f

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/transport"
)

// DefaultTimeout is the signing timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// Signer runs the U2F signing ceremony. It owns the timeout: when it expires the
// Signer returns an error, which Exchange passes through unchanged.
type Signer interface {
	Sign(ctx context.Context, req *SignRequest, timeout time.Duration) (*SignResult, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, req *SignRequest, timeout time.Duration) (*SignResult, error)

// Sign calls f.
func (f SignerFunc) Sign(ctx context.Context, req *SignRequest, timeout time.Duration) (*SignResult, error) {
	return f(ctx, req, timeout)
}

// Option configures a Transport.
type Option func(*Transport)

// WithTimeout sets the timeout handed to the Signer.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLogger sets the logger used for exchange events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// Transport exchanges APDUs through the U2F signing ceremony.
//
// Exchanges are not serialized: callers that share a Transport must not run
// exchanges concurrently unless their Signer serializes them.
type Transport struct {
	signer Signer
	origin string
	logger *slog.Logger

	mu          sync.RWMutex
	timeout     time.Duration
	scrambleKey []byte
}

var _ transport.Transport = (*Transport)(nil)

// Open creates a Transport. There is no connection step, so it cannot fail;
// a missing origin or scramble key surfaces on the first exchange.
func Open(signer Signer, origin string, opts ...Option) *Transport {
	t := &Transport{
		signer:  signer,
		origin:  origin,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetScrambleKey sets the session scramble key from its ASCII form.
func (t *Transport) SetScrambleKey(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scrambleKey = []byte(key)
}

// SetTimeout replaces the signing timeout.
func (t *Transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > 0 {
		t.timeout = d
	}
}

// Exchange sends apdu through the signing ceremony and returns the device response,
// status word included. A nil allowed list skips status validation.
func (t *Transport) Exchange(ctx context.Context, apdu []byte, allowed []iso7816.StatusWord) ([]byte, error) {
	t.mu.RLock()
	key, timeout := t.scrambleKey, t.timeout
	t.mu.RUnlock()

	req, err := BuildSignRequest(apdu, key, t.origin)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("u2f: sign request", "apdu_len", len(apdu), "app_id", req.AppID, "timeout", timeout)

	result, err := t.signer.Sign(ctx, req, timeout)
	if err != nil {
		t.logger.Debug("u2f: sign failed", "error", err)
		return nil, err
	}

	resp, err := DecodeResponse(result, allowed)
	if err != nil {
		t.logger.Debug("u2f: decode failed", "error", err)
		return nil, err
	}

	t.logger.Debug("u2f: exchange complete", "response_len", len(resp))
	return resp, nil
}

// ExchangeHex is Exchange with hex-encoded command and response.
func (t *Transport) ExchangeHex(ctx context.Context, apduHex string, allowed []iso7816.StatusWord) (string, error) {
	return transport.ExchangeHex(ctx, t, apduHex, allowed)
}

// Close releases nothing and always succeeds.
func (t *Transport) Close() error {
	return nil
}
