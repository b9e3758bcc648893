// internal/transport/usb.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/gousb"

	"github.com/tamzrod/krakenctl/internal/fault"
	"github.com/tamzrod/krakenctl/internal/protocol"
)

// USBConfig selects the interfaces and endpoints of the cooler.
type USBConfig struct {
	VendorID  uint16
	ProductID uint16

	// Serial picks one device when several are attached. Empty = first match.
	Serial string

	HIDInterface   int
	HIDInEndpoint  int
	HIDOutEndpoint int

	BulkInterface int
	BulkEndpoint  int
}

// DefaultUSBConfig is the Kraken Z3 layout: bulk on interface 0, HID on 1.
func DefaultUSBConfig() USBConfig {
	return USBConfig{
		VendorID:       protocol.VendorID,
		ProductID:      protocol.ProductID,
		HIDInterface:   1,
		HIDInEndpoint:  1,
		HIDOutEndpoint: 1,
		BulkInterface:  protocol.BulkInterface,
		BulkEndpoint:   protocol.BulkEndpoint,
	}
}

// usbLink implements Link on libusb through gousb.
type usbLink struct {
	ctx *gousb.Context
	dev *gousb.Device
	cfg *gousb.Config

	hid  *gousb.Interface
	bulk *gousb.Interface

	hidIn   *gousb.InEndpoint
	hidOut  *gousb.OutEndpoint // nil: fall back to SET_REPORT
	hidNum  int
	bulkOut *gousb.OutEndpoint
}

// OpenUSB opens and claims both channels of the first matching device.
// Errors wrap ErrDeviceNotFound or ErrAccessDenied where libusb tells us enough.
func OpenUSB(c USBConfig) (Link, error) {
	uctx := gousb.NewContext()

	l := &usbLink{ctx: uctx, hidNum: c.HIDInterface}
	fail := func(err error) (Link, error) {
		_ = l.Close()
		return nil, err
	}

	devs, err := uctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(c.VendorID) && desc.Product == gousb.ID(c.ProductID)
	})
	// OpenDevices may return devices alongside an error for ones it could not open
	for _, d := range devs {
		if l.dev == nil && serialMatches(d, c.Serial) {
			l.dev = d
			continue
		}
		_ = d.Close()
	}
	if l.dev == nil {
		if err != nil {
			return fail(mapOpenErr(err))
		}
		return fail(fmt.Errorf("usb %04x:%04x: %w", c.VendorID, c.ProductID, fault.ErrDeviceNotFound))
	}

	if err := l.dev.SetAutoDetach(true); err != nil {
		return fail(mapOpenErr(err))
	}

	num, err := l.dev.ActiveConfigNum()
	if err != nil {
		return fail(mapOpenErr(err))
	}
	l.cfg, err = l.dev.Config(num)
	if err != nil {
		return fail(mapOpenErr(err))
	}

	if l.hid, err = l.cfg.Interface(c.HIDInterface, 0); err != nil {
		return fail(mapOpenErr(err))
	}
	if l.hidIn, err = l.hid.InEndpoint(c.HIDInEndpoint); err != nil {
		return fail(fmt.Errorf("usb hid in endpoint %d: %w", c.HIDInEndpoint, err))
	}
	if out, err := l.hid.OutEndpoint(c.HIDOutEndpoint); err == nil {
		l.hidOut = out
	}

	if l.bulk, err = l.cfg.Interface(c.BulkInterface, 0); err != nil {
		return fail(mapOpenErr(err))
	}
	if l.bulkOut, err = l.bulk.OutEndpoint(c.BulkEndpoint); err != nil {
		return fail(fmt.Errorf("usb bulk out endpoint %d: %w", c.BulkEndpoint, err))
	}

	return l, nil
}

func (l *usbLink) WriteReport(ctx context.Context, report []byte) error {
	if l.hidOut != nil {
		n, err := l.hidOut.WriteContext(ctx, report)
		if err != nil {
			return err
		}
		if n != len(report) {
			return fmt.Errorf("usb hid wrote %d of %d bytes: %w", n, len(report), fault.ErrShortWrite)
		}
		return nil
	}

	// HID class SET_REPORT (output report, id 0)
	const (
		reqTypeClassIfaceOut = 0x21
		reqSetReport         = 0x09
		reportTypeOutput     = 0x0200
	)
	_, err := l.dev.Control(reqTypeClassIfaceOut, reqSetReport, reportTypeOutput, uint16(l.hidNum), report)
	return err
}

func (l *usbLink) ReadReport(ctx context.Context, buf []byte) (int, error) {
	return l.hidIn.ReadContext(ctx, buf)
}

func (l *usbLink) WriteBulk(ctx context.Context, data []byte) (int, error) {
	return l.bulkOut.WriteContext(ctx, data)
}

func (l *usbLink) Close() error {
	if l.hid != nil {
		l.hid.Close()
	}
	if l.bulk != nil {
		l.bulk.Close()
	}

	var errs []error
	if l.cfg != nil {
		errs = append(errs, l.cfg.Close())
	}
	if l.dev != nil {
		errs = append(errs, l.dev.Close())
	}
	if l.ctx != nil {
		errs = append(errs, l.ctx.Close())
	}
	return errors.Join(errs...)
}

// ------------------------------------------------------------
// Enumeration
// ------------------------------------------------------------

// DeviceInfo identifies one attached cooler.
type DeviceInfo struct {
	Bus     int
	Address int
	Serial  string
	Product string
}

// Enumerate lists attached coolers without claiming them.
func Enumerate(vendor, product uint16) ([]DeviceInfo, error) {
	uctx := gousb.NewContext()
	defer uctx.Close()

	devs, err := uctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vendor) && desc.Product == gousb.ID(product)
	})

	var out []DeviceInfo
	for _, d := range devs {
		info := DeviceInfo{Bus: d.Desc.Bus, Address: d.Desc.Address}
		info.Serial, _ = d.SerialNumber()
		info.Product, _ = d.Product()
		out = append(out, info)
		_ = d.Close()
	}

	if len(out) == 0 && err != nil {
		return nil, mapOpenErr(err)
	}
	return out, nil
}

func serialMatches(d *gousb.Device, want string) bool {
	if want == "" {
		return true
	}
	got, err := d.SerialNumber()
	return err == nil && got == want
}

// mapOpenErr folds libusb failures into the error taxonomy.
// gousb sometimes formats the libusb error into a string, hence the text fallback.
func mapOpenErr(err error) error {
	switch {
	case errors.Is(err, gousb.ErrorAccess), errors.Is(err, gousb.ErrorBusy):
		return fmt.Errorf("usb: %v: %w", err, fault.ErrAccessDenied)
	case errors.Is(err, gousb.ErrorNotFound), errors.Is(err, gousb.ErrorNoDevice):
		return fmt.Errorf("usb: %v: %w", err, fault.ErrDeviceNotFound)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access"), strings.Contains(msg, "busy"), strings.Contains(msg, "permission"):
		return fmt.Errorf("usb: %v: %w", err, fault.ErrAccessDenied)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no device"):
		return fmt.Errorf("usb: %v: %w", err, fault.ErrDeviceNotFound)
	}
	return fmt.Errorf("usb: %w", err)
}

// ------------------------------------------------------------
// Open: link + device in one step
// ------------------------------------------------------------

// Open claims the cooler over USB and wraps it in a guarded Device.
func Open(uc USBConfig, dc Config, opts ...Option) (*Device, error) {
	link, err := OpenUSB(uc)
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, fn := range opts {
		fn(&o)
	}

	d, err := New(link, dc, o.log)
	if err != nil {
		_ = link.Close()
		return nil, err
	}
	return d, nil
}
