// Package u2fhid talks to U2F authenticators over USB HID and provides the signing ceremony
// and the support check the u2f carrier consumes.
package u2fhid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karalabe/hid"
)

const (
	// fidoUsagePage is the FIDO alliance HID usage page.
	fidoUsagePage uint16 = 0xF1D0

	// fidoUsageU2FHID is the U2FHID usage of the top-level collection.
	fidoUsageU2FHID uint16 = 0x01
)

// ErrNoDevice is returned when no U2F HID authenticator is connected.
var ErrNoDevice = errors.New("u2fhid: no authenticator found")

// Enumerate lists the connected HID devices exposing the FIDO U2F collection.
func Enumerate() ([]hid.DeviceInfo, error) {
	if !hid.Supported() {
		return nil, errors.New("u2fhid: hid not supported on this platform")
	}

	all, err := hid.Enumerate(0, 0)
	if err != nil {
		return nil, fmt.Errorf("u2fhid: enumerate: %w", err)
	}

	var devices []hid.DeviceInfo
	for _, info := range all {
		if info.UsagePage == fidoUsagePage && info.Usage == fidoUsageU2FHID {
			devices = append(devices, info)
		}
	}
	return devices, nil
}

// Open opens info and allocates a channel on it.
func Open(ctx context.Context, info hid.DeviceInfo, logger *slog.Logger) (*Device, error) {
	handle, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("u2fhid: open %s: %w", info.Path, err)
	}

	d := newDevice(handle, logger)
	if err := d.init(ctx); err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			d.logger.Warn("u2fhid: failed to close device during error handling", "error", closeErr)
		}
		return nil, err
	}

	d.logger.Info("u2fhid: authenticator opened", "product", info.Product, "manufacturer", info.Manufacturer)
	return d, nil
}

// OpenFirst opens the first connected authenticator.
func OpenFirst(ctx context.Context, logger *slog.Logger) (*Device, error) {
	devices, err := Enumerate()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	return Open(ctx, devices[0], logger)
}

// SupportChecker reports the carrier as supported when an authenticator is connected.
type SupportChecker struct{}

// IsSupported implements u2f.SupportChecker.
func (SupportChecker) IsSupported(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	devices, err := Enumerate()
	if err != nil {
		return false, err
	}
	return len(devices) > 0, nil
}
