// Package sim simulates the regulator hardware: an AD7190 behind an SPI bus,
// a heated thermal mass and a steppable clock.
package sim

import (
	"math"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/itohio/gothermo/pkg/ad7190"
)

var _ drivers.SPI = (*ADC)(nil)

// Power-on register values.
var resetValues = [8]uint32{
	ad7190.RegStatus:    0x80,
	ad7190.RegMode:      0x080060,
	ad7190.RegConfig:    0x000117,
	ad7190.RegData:      0x000000,
	ad7190.RegID:        0x04,
	ad7190.RegGPOCon:    0x00,
	ad7190.RegOffset:    0x800000,
	ad7190.RegFullScale: 0x500000,
}

const (
	resetOnes = 5 // 40 consecutive 1s
	codeMax   = 1<<24 - 1
)

// Write records a completed register write.
type Write struct {
	Reg   ad7190.Register
	Value uint32
}

// Source returns the differential input voltage for the selected channels.
type Source func(channels ad7190.Channel) float64

// ADC emulates the AD7190 serial interface byte by byte.
type ADC struct {
	mu sync.Mutex

	vref   float64
	source Source

	regs [8]uint32

	// Serial interface state
	reg       ad7190.Register
	read      bool
	remaining int
	value     uint32
	ones      int

	// BusyPolls is the number of status reads reporting busy after each new conversion.
	BusyPolls int
	// Stuck keeps the busy flag set forever.
	Stuck bool

	pending int
	writes  []Write
	resets  int
}

// NewADC creates a simulated converter with reference vref reading its inputs from source.
func NewADC(vref float64, source Source) *ADC {
	a := &ADC{
		vref:      vref,
		source:    source,
		BusyPolls: 2,
	}
	a.regs = resetValues
	return a
}

// Tx implements drivers.SPI.
func (a *ADC) Tx(w, r []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, b := range w {
		out := a.transfer(b)
		if r != nil && i < len(r) {
			r[i] = out
		}
	}
	return nil
}

// Transfer implements drivers.SPI.
func (a *ADC) Transfer(b byte) (byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transfer(b), nil
}

func (a *ADC) transfer(b byte) byte {
	if b == 0xFF {
		a.ones++
		if a.ones == resetOnes {
			a.reset()
			return 0xFF
		}
	} else {
		a.ones = 0
	}

	if a.remaining > 0 {
		a.remaining--
		if a.read {
			return byte(a.value >> (8 * a.remaining))
		}
		a.value = a.value<<8 | uint32(b)
		if a.remaining == 0 {
			a.commit(a.reg, a.value)
		}
		return 0
	}

	// Communications register: WEN must be low
	if b&0x80 != 0 {
		return 0xFF
	}
	a.reg = ad7190.Register((b >> 3) & 0x7)
	a.read = b&0x40 != 0
	a.remaining = a.reg.Width()
	a.value = 0
	if a.read {
		a.value = a.load(a.reg)
	}
	return 0
}

func (a *ADC) reset() {
	a.regs = resetValues
	a.remaining = 0
	a.pending = 0
	a.resets++
}

func (a *ADC) commit(reg ad7190.Register, v uint32) {
	a.writes = append(a.writes, Write{Reg: reg, Value: v})
	switch reg {
	case ad7190.RegStatus, ad7190.RegData, ad7190.RegID:
		// read-only
		return
	case ad7190.RegMode, ad7190.RegConfig:
		a.pending = a.BusyPolls
	}
	a.regs[reg] = v
}

func (a *ADC) load(reg ad7190.Register) uint32 {
	switch reg {
	case ad7190.RegStatus:
		if a.Stuck || a.pending > 0 {
			if a.pending > 0 {
				a.pending--
			}
			return a.regs[reg] | 0x80
		}
		return a.regs[reg] &^ 0x80
	case ad7190.RegData:
		return a.convert()
	}
	return a.regs[reg]
}

func (a *ADC) convert() uint32 {
	cfg := a.regs[ad7190.RegConfig]
	channels := ad7190.Channel(cfg >> 8)
	gain := ad7190.Gain(cfg & 0x7)
	fs := a.vref / float64(gain.Factor())

	var v float64
	if a.source != nil {
		v = a.source(channels)
	}
	code := (v + fs) / (2 * fs) * (1 << 24)
	switch {
	case math.IsNaN(code) || code < 0:
		return 0
	case code > codeMax:
		return codeMax
	}
	return uint32(code)
}

// Register returns the current value of reg.
func (a *ADC) Register(reg ad7190.Register) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.regs[reg]
}

// Writes returns all register writes since creation.
func (a *ADC) Writes() []Write {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Write(nil), a.writes...)
}

// Modes returns the operating modes written to the mode register, in order.
func (a *ADC) Modes() []ad7190.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	var modes []ad7190.Mode
	for _, w := range a.writes {
		if w.Reg == ad7190.RegMode {
			modes = append(modes, ad7190.Mode(w.Value>>21))
		}
	}
	return modes
}

// Resets returns how many reset sequences were seen.
func (a *ADC) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}
