package u2fhid

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// The HID framing is defined in the FIDO U2F HID protocol:
// https://fidoalliance.org/specs/fido-u2f-v1.2-ps-20170411/fido-u2f-hid-protocol-v1.2-ps-20170411.html
//
// A message is split into one initialization frame and up to 128 continuation frames:
//
//	init: CID(4) | CMD(1, bit 7 set) | BCNT(2) | DATA(57)
//	cont: CID(4) | SEQ(1, bit 7 clear) | DATA(59)

const (
	// reportSize is the size of a raw HID report.
	reportSize = 64

	// cidBroadcast is the channel used before a channel is allocated.
	cidBroadcast uint32 = 0xFFFFFFFF

	typeInit byte = 0x80

	cmdPing      = typeInit | 0x01
	cmdMsg       = typeInit | 0x03
	cmdInit      = typeInit | 0x06
	cmdKeepalive = typeInit | 0x3B
	cmdError     = typeInit | 0x3F

	initDataSize = reportSize - 7
	contDataSize = reportSize - 5

	// maxMessageSize is what one initialization and 128 continuation frames can hold.
	maxMessageSize = initDataSize + 128*contDataSize

	initNonceSize = 8

	// initResponseSize: nonce(8) CID(4) version(1) major(1) minor(1) build(1) capabilities(1)
	initResponseSize = 17
)

// ErrDevice is returned when the authenticator answers with an error frame.
var ErrDevice = errors.New("u2fhid: device error")

// rawDevice is the HID handle; hid.Device implements it.
type rawDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Device is a U2F HID authenticator with an allocated channel.
// A channel carries one message at a time, so calls are serialized.
type Device struct {
	mu     sync.Mutex
	dev    rawDevice
	cid    uint32
	rand   io.Reader
	logger *slog.Logger
}

func newDevice(dev rawDevice, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		dev:    dev,
		cid:    cidBroadcast,
		rand:   rand.Reader,
		logger: logger,
	}
}

// init allocates a channel with U2FHID_INIT on the broadcast channel.
func (d *Device) init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	nonce := make([]byte, initNonceSize)
	if _, err := io.ReadFull(d.rand, nonce); err != nil {
		return fmt.Errorf("u2fhid: init nonce: %w", err)
	}

	d.cid = cidBroadcast
	if err := d.writeMessage(cmdInit, nonce); err != nil {
		return err
	}

	// Other clients may be initializing on the broadcast channel too: skip foreign nonces.
	for {
		resp, err := d.readMessage(ctx, cmdInit)
		if err != nil {
			return err
		}
		if len(resp) < initResponseSize {
			return fmt.Errorf("u2fhid: init response too short: %d bytes", len(resp))
		}
		if !bytes.Equal(resp[:initNonceSize], nonce) {
			continue
		}

		d.cid = binary.BigEndian.Uint32(resp[8:12])
		d.logger.Debug("u2fhid: channel allocated",
			"cid", fmt.Sprintf("%08X", d.cid),
			"version", fmt.Sprintf("%d.%d.%d", resp[13], resp[14], resp[15]),
			"capabilities", fmt.Sprintf("%02X", resp[16]))
		return nil
	}
}

// Message sends a raw U2F message (an extended-length APDU) and returns the raw response,
// status word included.
func (d *Device) Message(ctx context.Context, msg []byte) ([]byte, error) {
	return d.transact(ctx, cmdMsg, msg)
}

// Ping echoes data through the device.
func (d *Device) Ping(ctx context.Context, data []byte) ([]byte, error) {
	return d.transact(ctx, cmdPing, data)
}

func (d *Device) transact(ctx context.Context, cmd byte, data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.writeMessage(cmd, data); err != nil {
		return nil, err
	}
	return d.readMessage(ctx, cmd)
}

// Close releases the HID handle.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.Close()
}

func (d *Device) writeMessage(cmd byte, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("u2fhid: message too long: %d bytes (max %d)", len(data), maxMessageSize)
	}

	// Leading byte is the HID report ID.
	buf := make([]byte, reportSize+1)
	binary.BigEndian.PutUint32(buf[1:], d.cid)
	buf[5] = cmd
	binary.BigEndian.PutUint16(buf[6:], uint16(len(data)))
	sent := copy(buf[8:], data)

	if _, err := d.dev.Write(buf); err != nil {
		return fmt.Errorf("u2fhid: write: %w", err)
	}

	for seq := byte(0); sent < len(data); seq++ {
		clear(buf)
		binary.BigEndian.PutUint32(buf[1:], d.cid)
		buf[5] = seq
		sent += copy(buf[6:], data[sent:])

		if _, err := d.dev.Write(buf); err != nil {
			return fmt.Errorf("u2fhid: write: %w", err)
		}
	}
	return nil
}

func (d *Device) readMessage(ctx context.Context, cmd byte) ([]byte, error) {
	frame := make([]byte, reportSize)

	for {
		if err := d.readFrame(ctx, frame); err != nil {
			return nil, err
		}
		if binary.BigEndian.Uint32(frame[:4]) != d.cid {
			continue
		}

		switch frame[4] {
		case cmd:
		case cmdKeepalive:
			continue
		case cmdError:
			return nil, fmt.Errorf("%w: 0x%02X", ErrDevice, frame[7])
		default:
			return nil, fmt.Errorf("u2fhid: unexpected command 0x%02X, want 0x%02X", frame[4], cmd)
		}
		break
	}

	total := int(binary.BigEndian.Uint16(frame[5:7]))
	data := make([]byte, total)
	received := copy(data, frame[7:])

	seq := byte(0)
	for received < total {
		if err := d.readFrame(ctx, frame); err != nil {
			return nil, err
		}
		if binary.BigEndian.Uint32(frame[:4]) != d.cid {
			continue
		}
		if frame[4] != seq {
			return nil, fmt.Errorf("u2fhid: sequence %d, want %d", frame[4], seq)
		}
		received += copy(data[received:], frame[5:])
		seq++
	}

	return data, nil
}

func (d *Device) readFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clear(frame)
	if _, err := d.dev.Read(frame); err != nil {
		return fmt.Errorf("u2fhid: read: %w", err)
	}
	return nil
}
