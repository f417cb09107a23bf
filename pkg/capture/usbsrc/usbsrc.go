// Package usbsrc lists logic analyzers attached over USB. It needs cgo and
// libusb, and nothing under pkg imports it.
package usbsrc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Kind categorizes capture sources.
type Kind string

const (
	KindSaleae  Kind = "saleae"
	KindFX2     Kind = "fx2lafw"
	KindUnknown Kind = "unknown"
	KindSim     Kind = "simulator"
)

// Info describes a detected logic analyzer or other capture source.
type Info struct {
	Kind        Kind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

// Label returns a user-friendly description for the source.
func (s Info) Label() string {
	if s.Description != "" {
		return s.Description
	}
	if s.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(s.Kind), s.VendorID, s.ProductID)
	}
	return fmt.Sprintf("Source %04X:%04X", s.VendorID, s.ProductID)
}

// Discover enumerates connected USB logic analyzers that match known
// VID/PID pairs. The simulator entry is always appended last so a capture can
// be produced without hardware.
func Discover(ctx context.Context) ([]Info, error) {
	var results []Info
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := Classify(uint16(desc.Vendor), uint16(desc.Product)); ok {
			info.Bus = desc.Bus
			info.Address = desc.Address
			results = append(results, info)
		}
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, err
	}

	results = append(results, Info{
		Kind:        KindSim,
		Description: "Simulator (no hardware)",
	})
	return results, ctx.Err()
}

// Classify maps a VID/PID pair to a known logic analyzer.
func Classify(vendor, product uint16) (Info, bool) {
	for _, known := range knownAnalyzers {
		if vendor == known.VendorID && product == known.ProductID {
			return Info{
				Kind:        known.Kind,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return Info{}, false
}

type knownUSBDevice struct {
	Kind        Kind
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownAnalyzers = []knownUSBDevice{
	{KindSaleae, 0x0925, 0x3881, "Saleae Logic"},
	{KindSaleae, 0x21a9, 0x1001, "Saleae Logic 4"},
	{KindSaleae, 0x21a9, 0x1003, "Saleae Logic 8"},
	{KindSaleae, 0x21a9, 0x1004, "Saleae Logic Pro 8"},
	{KindSaleae, 0x21a9, 0x1005, "Saleae Logic Pro 16"},
	{KindFX2, 0x1d50, 0x608c, "fx2lafw logic analyzer"},
	{KindFX2, 0x04b4, 0x8613, "Cypress FX2 (unprogrammed)"},
}
