// Package spibus adapts a Linux SPI port to the tinygo drivers.SPI interface
// so the AD7190 driver can be exercised from a host.
package spibus

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

var _ drivers.SPI = (*Bus)(nil)

// Bus is an open SPI port.
type Bus struct {
	port spi.PortCloser
	conn spi.Conn
}

// Open opens the named SPI port (empty selects the first one) in mode 3,
// 8 bits per word, at hz.
func Open(name string, hz int64) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure SPI port %q: %w", name, err)
	}
	return &Bus{port: port, conn: conn}, nil
}

// Tx performs a full duplex transfer. A nil r discards the received bytes.
func (b *Bus) Tx(w, r []byte) error {
	if r == nil {
		r = make([]byte, len(w))
	}
	return b.conn.Tx(w, r)
}

// Transfer writes one byte and returns the byte clocked in.
func (b *Bus) Transfer(w byte) (byte, error) {
	var r [1]byte
	if err := b.conn.Tx([]byte{w}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Close releases the port.
func (b *Bus) Close() error {
	return b.port.Close()
}
