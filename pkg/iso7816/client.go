package iso7816

import (
	"context"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client drives the transport-level status words on top of an Exchanger:
//
// 1. "61 XX" (Response Available):
//    XX bytes are waiting. The client sends GET RESPONSE to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The expected length (Le) was incorrect. The client re-sends the original
//    command with Le = XX.
//
// Send returns a Trace, the log of all atomic transactions that were needed to
// fulfill the logical request.

// INS_GET_RESPONSE is the instruction used to collect pending response bytes.
const INS_GET_RESPONSE byte = 0xC0

// maxRounds bounds the number of follow-up commands a single Send may issue.
const maxRounds = 32

// Exchanger moves one raw C-APDU to the device and returns the raw R-APDU.
// A nil allowed list skips status validation.
type Exchanger interface {
	Exchange(ctx context.Context, apdu []byte, allowed []StatusWord) ([]byte, error)
}

// Client manages the high-level communication with the device.
type Client struct {
	Transport Exchanger
}

// NewClient creates a new Client instance.
func NewClient(tr Exchanger) *Client {
	return &Client{Transport: tr}
}

// Send transmits a command and handles protocol logic (61XX, 6CXX).
func (c *Client) Send(ctx context.Context, cmd *Command) (Trace, error) {
	var trace Trace

	for round := 0; round < maxRounds; round++ {
		resp, err := c.transmit(ctx, cmd)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: cmd, Response: resp})

		switch resp.Status.SW1() {
		case 0x61:
			// GET RESPONSE must use the same logical channel as the original command.
			cmd = NewCommand(getResponseClass(cmd.CLA), INS_GET_RESPONSE, 0x00, 0x00, nil, shortLe(resp.Status.SW2()))
		case 0x6C:
			retry := *cmd
			retry.Ne = shortLe(resp.Status.SW2())
			cmd = &retry
		default:
			return trace, nil
		}
	}

	return trace, fmt.Errorf("response still pending after %d commands", maxRounds)
}

func (c *Client) transmit(ctx context.Context, cmd *Command) (*Response, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Transport.Exchange(ctx, rawCmd, nil)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	return ParseResponse(rawResp)
}

// getResponseClass clears the command chaining bit of an interindustry class.
func getResponseClass(cla byte) byte {
	if cla&0x80 != 0 {
		return cla
	}
	return cla &^ 0x10
}

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *Command
	Response *Response
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs) produced by one
// logical exchange, 61XX and 6CXX follow-ups included.
type Trace []Transaction

// Last returns the final transaction of the trace, or nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Data concatenates the response data of every transaction, which re-assembles
// a response delivered in GET RESPONSE chunks.
func (t Trace) Data() []byte {
	var out []byte
	for _, tx := range t {
		if tx.Response != nil {
			out = append(out, tx.Response.Data...)
		}
	}
	return out
}
