package ad7190

import (
	"fmt"
	"strings"
)

// Register identifies an on-chip register.
type Register uint8

// On-chip registers (datasheet p.19).
const (
	RegStatus    Register = 0x0 // Communications register on write, status on read
	RegMode      Register = 0x1
	RegConfig    Register = 0x2
	RegData      Register = 0x3
	RegID        Register = 0x4
	RegGPOCon    Register = 0x5
	RegOffset    Register = 0x6
	RegFullScale Register = 0x7
)

// Width returns the register width in bytes.
func (r Register) Width() int {
	switch r {
	case RegStatus, RegID, RegGPOCon:
		return 1
	default:
		return 3
	}
}

// Mode is the operating mode code held in MR23..MR21.
type Mode uint8

const (
	ModeContinuous      Mode = 0x0
	ModeSingle          Mode = 0x1 // Pulsed conversion; re-armed after every read
	ModeIdle            Mode = 0x2
	ModePowerDown       Mode = 0x3
	ModeInternalZeroCal Mode = 0x4
	ModeInternalFullCal Mode = 0x5
	ModeSystemZeroCal   Mode = 0x6
	ModeSystemFullCal   Mode = 0x7
)

// ClockSource selects the master clock (MR19..MR18).
type ClockSource uint8

const (
	ClockExternalCrystal ClockSource = 0x0
	ClockExternal        ClockSource = 0x1
	ClockInternal        ClockSource = 0x2 // MCLK2 tristated
	ClockInternalOut     ClockSource = 0x3 // Internal clock available on MCLK2
)

// Gain is the PGA gain code (CON2..CON0). Full scale is vref / 2^code.
type Gain uint8

const (
	Gain1   Gain = 0x0
	Gain8   Gain = 0x3
	Gain16  Gain = 0x4
	Gain32  Gain = 0x5
	Gain64  Gain = 0x6
	Gain128 Gain = 0x7
)

// Factor returns the amplification the code selects.
func (g Gain) Factor() int {
	return 1 << g
}

// GainFromFactor maps an amplification factor (1, 8, 16, 32, 64, 128) to its code.
func GainFromFactor(factor int) (Gain, error) {
	for _, g := range []Gain{Gain1, Gain8, Gain16, Gain32, Gain64, Gain128} {
		if g.Factor() == factor {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unsupported gain %d", factor)
}

// Channel is a channel-select bitmask (CON15..CON8). Several bits may be set
// at once, in which case the device sequences through the enabled channels.
type Channel uint8

// Input channels. First name is the positive input, second the negative one.
const (
	AIN1AIN2 Channel = 0x01
	AIN3AIN4 Channel = 0x02
	Temp     Channel = 0x04
	AIN2AIN2 Channel = 0x08
	AIN1COM  Channel = 0x10
	AIN2COM  Channel = 0x20
	AIN3COM  Channel = 0x40
	AIN4COM  Channel = 0x80
)

var channelNames = map[string]Channel{
	"ain1-ain2": AIN1AIN2,
	"ain3-ain4": AIN3AIN4,
	"temp":      Temp,
	"ain2-ain2": AIN2AIN2,
	"ain1-com":  AIN1COM,
	"ain2-com":  AIN2COM,
	"ain3-com":  AIN3COM,
	"ain4-com":  AIN4COM,
}

// ParseChannel parses a channel list such as "ain1-ain2" or "ain1-com|ain2-com".
func ParseChannel(s string) (Channel, error) {
	var ch Channel
	for _, name := range strings.Split(s, "|") {
		name = strings.ToLower(strings.TrimSpace(name))
		c, ok := channelNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown channel %q", name)
		}
		ch |= c
	}
	return ch, nil
}

// Polarity selects bipolar or unipolar coding (CON3).
type Polarity uint8

const (
	Bipolar  Polarity = 0x0
	Unipolar Polarity = 0x1
)

// Reference selects the reference input pair (CON20).
type Reference uint8

const (
	RefIn1 Reference = 0x0
	RefIn2 Reference = 0x1
)

const (
	cmdRead        = 0x40
	statusNotReady = 0x80

	modeShift   = 21
	clockShift  = 18
	refShift    = 20
	chanShift   = 8
	bufferShift = 4
	polShift    = 3
)

// command encodes the communications register byte for the next operation.
func command(reg Register, read bool) byte {
	c := byte(reg) << 3
	if read {
		c |= cmdRead
	}
	return c
}

// modeValue encodes the 24-bit mode register.
func modeValue(mode Mode, clk ClockSource) uint32 {
	return uint32(mode)<<modeShift | uint32(clk)<<clockShift
}

// configValue encodes the 24-bit configuration register.
func configValue(ref Reference, channels Channel, polarity Polarity, gain Gain, buffered bool) uint32 {
	v := uint32(ref)<<refShift | uint32(channels)<<chanShift | uint32(polarity)<<polShift | uint32(gain)
	if buffered {
		v |= 1 << bufferShift
	}
	return v
}
