// Package link connects the host to a regulator: the firmware over a serial
// port or a simulated regulator running in process.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/edaniels/golog"
	"go.bug.st/serial"

	"github.com/itohio/gothermo/pkg/command"
	"github.com/itohio/gothermo/pkg/pid"
)

const (
	// DefaultBaudRate is the firmware UART rate.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the reports channel buffer.
	DefaultBufferSize = 100
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial is a connection to the regulator firmware.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	logger   golog.Logger
	open     func(name string, mode *serial.Mode) (serial.Port, error)

	conn      serial.Port
	reports   chan pid.Report
	done      chan struct{}
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
	closed    bool
}

// New creates a serial link with the specified port, baud rate, and buffer size.
func New(port string, baudRate, bufSize int, logger golog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		logger:   logger,
		open:     serial.Open,
		reports:  make(chan pid.Report, bufSize),
	}
}

// Connect opens the serial port and starts reading reports.
// Reconnecting after Close starts a new reports channel.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return errors.New("already connected")
	}

	port, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if d.closed {
		d.reports = make(chan pid.Report, d.bufSize)
		d.closed = false
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.conn = port
	d.connected = true

	go d.readReports(ctx, port, d.reports, d.done)

	return nil
}

// Close closes the port and waits for the reader to finish.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	err := d.conn.Close()
	d.conn = nil
	d.connected = false
	d.closed = true
	done := d.done
	d.mu.Unlock()

	<-done
	return err
}

// Reports returns the channel of decoded diagnostic reports. It is closed
// when the link is closed or the port fails.
func (d *Serial) Reports() <-chan pid.Report {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reports
}

// Send writes a command line to the firmware.
func (d *Serial) Send(cmd command.Command) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return errors.New("not connected")
	}
	if _, err := d.conn.Write(cmd.AppendFormat(nil)); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd.Name, err)
	}
	return nil
}

// IsConnected returns whether the link is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) readReports(ctx context.Context, r io.Reader, out chan pid.Report, done chan struct{}) {
	defer close(done)
	defer close(out)
	if err := scanReports(ctx, r, out, d.logger); err != nil {
		d.logger.Errorw("serial read failed", "port", d.port, "error", err)
	}
}

// scanReports decodes report lines from r into out until r ends or ctx is done.
// Lines that are not reports (boot messages, echoes) are logged and skipped.
func scanReports(ctx context.Context, r io.Reader, out chan<- pid.Report, logger golog.Logger) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rep, err := pid.ParseReport(line)
		if err != nil {
			logger.Debugw("device", "line", line)
			continue
		}

		select {
		case out <- rep:
		case <-ctx.Done():
			return nil
		default:
			logger.Warn("reports channel full, dropping report")
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
