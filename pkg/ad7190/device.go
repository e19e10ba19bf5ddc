// Package ad7190 drives an AD7190 delta-sigma ADC over SPI.
//
// The bus is any tinygo drivers.SPI: machine.SPI0 on the firmware, a periph.io
// connection on Linux hosts or the register simulator in package sim.
// The device expects SPI mode 3, MSB first, at up to ~2.46 MHz.
package ad7190

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"tinygo.org/x/drivers"
)

var (
	// ErrNotReady is returned when a conversion does not complete within ReadTimeout.
	ErrNotReady = errors.New("ad7190: device not ready")
	// ErrInvalidWidth is returned for register accesses outside 1..4 bytes.
	ErrInvalidWidth = errors.New("ad7190: invalid register width")
)

const (
	// DefaultResetSettle is the wait after the reset sequence (datasheet: 500µs).
	DefaultResetSettle = 600 * time.Microsecond
	// DefaultCalibrationSettle is the wait after each calibration phase.
	DefaultCalibrationSettle = time.Second
	// DefaultPollInterval is the wait between status polls.
	DefaultPollInterval = 100 * time.Microsecond
	// DefaultReadTimeout bounds a single conversion.
	DefaultReadTimeout = 500 * time.Millisecond

	// SPIFrequency is the bus clock the device is run at.
	SPIFrequency = 2460000

	resetBytes = 10
	codeSpan   = 1 << 24
)

// Clock is the time source used for settle delays and read timeouts.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

var _ Clock = clock.Clock(nil)

// Config holds the device configuration applied by Init.
type Config struct {
	Mode      Mode
	Clock     ClockSource
	Reference Reference
	Channels  Channel
	Polarity  Polarity
	Gain      Gain
	Buffered  bool

	ResetSettle       time.Duration // 0 uses DefaultResetSettle
	CalibrationSettle time.Duration // 0 uses DefaultCalibrationSettle
	PollInterval      time.Duration
	ReadTimeout       time.Duration // 0 waits forever
}

// DefaultConfig returns the pulsed, internally clocked, bipolar x32 buffered
// configuration for the given channels.
func DefaultConfig(channels Channel) Config {
	return Config{
		Mode:              ModeSingle,
		Clock:             ClockInternalOut,
		Reference:         RefIn1,
		Channels:          channels,
		Polarity:          Bipolar,
		Gain:              Gain32,
		Buffered:          true,
		ResetSettle:       DefaultResetSettle,
		CalibrationSettle: DefaultCalibrationSettle,
		PollInterval:      DefaultPollInterval,
		ReadTimeout:       DefaultReadTimeout,
	}
}

// Device is an AD7190 attached to an SPI bus. It is not safe for concurrent use.
type Device struct {
	bus   drivers.SPI
	clock Clock
	vref  float64

	cfg        Config
	fullScale  float64
	singleConv bool
}

// New creates a device on bus with reference voltage vref. A nil clk uses the wall clock.
func New(bus drivers.SPI, clk Clock, vref float64) *Device {
	if clk == nil {
		clk = clock.New()
	}
	return &Device{
		bus:       bus,
		clock:     clk,
		vref:      vref,
		fullScale: vref,
		cfg: Config{
			ResetSettle:       DefaultResetSettle,
			CalibrationSettle: DefaultCalibrationSettle,
		},
	}
}

// FullScale returns the symmetric input range in volts.
func (d *Device) FullScale() float64 {
	return d.fullScale
}

// Config returns the configuration applied by the last Init.
func (d *Device) Config() Config {
	return d.cfg
}

// Reset clocks 1s into DIN to restore all registers to their power-on values.
func (d *Device) Reset() error {
	var ones [resetBytes]byte
	for i := range ones {
		ones[i] = 0xFF
	}
	if err := d.bus.Tx(ones[:], nil); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	d.clock.Sleep(d.cfg.ResetSettle)
	return nil
}

// WriteRegister writes the low n bytes of value to reg, most significant byte first.
func (d *Device) WriteRegister(reg Register, value uint32, n int) error {
	if n < 1 || n > 4 {
		return ErrInvalidWidth
	}
	var frame [5]byte
	frame[0] = command(reg, false)
	for i := 0; i < n; i++ {
		frame[1+i] = byte(value >> (8 * (n - 1 - i)))
	}
	if err := d.bus.Tx(frame[:n+1], nil); err != nil {
		return fmt.Errorf("write register %d: %w", reg, err)
	}
	return nil
}

// ReadRegister reads n bytes from reg and assembles them MSB first.
func (d *Device) ReadRegister(reg Register, n int) (uint32, error) {
	if n < 1 || n > 4 {
		return 0, ErrInvalidWidth
	}
	var tx, rx [5]byte
	tx[0] = command(reg, true)
	if err := d.bus.Tx(tx[:n+1], rx[:n+1]); err != nil {
		return 0, fmt.Errorf("read register %d: %w", reg, err)
	}
	var v uint32
	for _, b := range rx[1 : n+1] {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// ID returns the contents of the ID register.
func (d *Device) ID() (uint8, error) {
	v, err := d.ReadRegister(RegID, RegID.Width())
	return uint8(v), err
}

// SetMode writes the operating mode and clock source.
func (d *Device) SetMode(mode Mode, clk ClockSource) error {
	return d.WriteRegister(RegMode, modeValue(mode, clk), RegMode.Width())
}

// Calibrate runs an internal zero-scale then full-scale calibration,
// waiting CalibrationSettle after each.
func (d *Device) Calibrate(clk ClockSource) error {
	if err := d.SetMode(ModeInternalZeroCal, clk); err != nil {
		return fmt.Errorf("zero-scale calibration: %w", err)
	}
	d.clock.Sleep(d.cfg.CalibrationSettle)

	if err := d.SetMode(ModeInternalFullCal, clk); err != nil {
		return fmt.Errorf("full-scale calibration: %w", err)
	}
	d.clock.Sleep(d.cfg.CalibrationSettle)
	return nil
}

// SetConfig writes the configuration register. Setting several channel bits
// makes the device load each enabled channel into the data register in turn.
func (d *Device) SetConfig(ref Reference, channels Channel, polarity Polarity, gain Gain, buffered bool) error {
	return d.WriteRegister(RegConfig, configValue(ref, channels, polarity, gain, buffered), RegConfig.Width())
}

// Init resets, calibrates and configures the device.
func (d *Device) Init(cfg Config) error {
	if cfg.ResetSettle <= 0 {
		cfg.ResetSettle = DefaultResetSettle
	}
	if cfg.CalibrationSettle <= 0 {
		cfg.CalibrationSettle = DefaultCalibrationSettle
	}
	d.cfg = cfg
	d.fullScale = d.vref / float64(cfg.Gain.Factor())
	d.singleConv = cfg.Mode == ModeSingle

	if err := d.Reset(); err != nil {
		return err
	}
	if err := d.SetMode(cfg.Mode, cfg.Clock); err != nil {
		return err
	}
	if err := d.Calibrate(cfg.Clock); err != nil {
		return err
	}
	// Calibration leaves the mode register in idle
	if err := d.SetMode(cfg.Mode, cfg.Clock); err != nil {
		return err
	}
	return d.SetConfig(cfg.Reference, cfg.Channels, cfg.Polarity, cfg.Gain, cfg.Buffered)
}

// InitChannels initializes the device with DefaultConfig for channels.
func (d *Device) InitChannels(channels Channel) error {
	return d.Init(DefaultConfig(channels))
}

// Ratio maps a raw 24-bit code onto [-FullScale, +FullScale).
func (d *Device) Ratio(code uint32) float64 {
	return codeToVolts(code, d.fullScale)
}

func codeToVolts(code uint32, fullScale float64) float64 {
	return float64(code)/codeSpan*2*fullScale - fullScale
}

// ReadConversion selects channels, waits for a conversion and returns it in volts.
// It returns ErrNotReady if the device stays busy past ReadTimeout.
func (d *Device) ReadConversion(ctx context.Context, channels Channel) (float64, error) {
	if err := d.SetConfig(d.cfg.Reference, channels, d.cfg.Polarity, d.cfg.Gain, d.cfg.Buffered); err != nil {
		return 0, err
	}
	if err := d.waitReady(ctx); err != nil {
		return 0, err
	}

	code, err := d.ReadRegister(RegData, RegData.Width())
	if err != nil {
		return 0, err
	}
	v := d.Ratio(code)

	if d.singleConv {
		if err := d.SetMode(ModeSingle, d.cfg.Clock); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (d *Device) waitReady(ctx context.Context) error {
	start := d.clock.Now()
	for {
		status, err := d.ReadRegister(RegStatus, RegStatus.Width())
		if err != nil {
			return err
		}
		if status&statusNotReady == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.cfg.ReadTimeout > 0 && d.clock.Now().Sub(start) >= d.cfg.ReadTimeout {
			return ErrNotReady
		}
		if d.cfg.PollInterval > 0 {
			d.clock.Sleep(d.cfg.PollInterval)
		}
	}
}
