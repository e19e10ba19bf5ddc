package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.uber.org/multierr"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/command"
	"github.com/itohio/gothermo/pkg/config"
	"github.com/itohio/gothermo/pkg/pid"
	"github.com/itohio/gothermo/pkg/regulator"
	"github.com/itohio/gothermo/pkg/sim"
)

// Mock runs a complete simulated regulator: the AD7190 driver talks to a
// register-level simulator whose inputs come from a heated thermal plant.
type Mock struct {
	cfg    *config.Config
	logger golog.Logger
	clock  ad7190.Clock

	plant     *sim.Plant
	bus       *sim.ADC
	adc       *ad7190.Device
	adcConfig ad7190.Config
	ctl       *lockedController
	reg       *regulator.Regulator
	writer    *reportWriter

	reports   chan pid.Report
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	runErr    error
	connected bool
	closed    bool
}

// NewMock creates a simulated device. A nil clk runs in real time.
func NewMock(cfg *config.Config, clk ad7190.Clock, logger golog.Logger) (*Mock, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	devCfg, err := cfg.ADC.Device()
	if err != nil {
		return nil, err
	}
	sensor, errCh, err := cfg.ADC.Channels()
	if err != nil {
		return nil, err
	}

	m := &Mock{
		cfg:       cfg,
		logger:    logger,
		clock:     clk,
		adcConfig: devCfg,
		reports:   make(chan pid.Report, DefaultBufferSize),
	}

	m.writer = &reportWriter{out: m.reports, logger: logger}
	settings := cfg.Controller.Settings()
	settings.Output = m.writer
	settings.Clock = clk

	m.plant = sim.NewPlant(cfg.Plant.Sim(), clk)
	m.bus = sim.NewADC(cfg.ADC.VRef, m.plant.Source(sensor, errCh))
	m.adc = ad7190.New(m.bus, clk, cfg.ADC.VRef)
	m.ctl = &lockedController{ctl: pid.New(settings, m.plant)}
	m.reg = regulator.New(m.adc, m.ctl, regulator.Channels{Sensor: sensor, Error: errCh},
		cfg.Controller.Interval, clk, logger)
	return m, nil
}

// Connect initializes the simulated converter and starts the control loop.
// Reconnecting after Close starts a new reports channel.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return errors.New("already connected")
	}

	if err := m.adc.Init(m.adcConfig); err != nil {
		return fmt.Errorf("failed to initialize converter: %w", err)
	}
	m.ctl.do(func(c *pid.Controller) { c.SetStartTime() })

	if m.closed {
		m.reports = make(chan pid.Report, DefaultBufferSize)
		m.writer.out = m.reports
		m.writer.buf = m.writer.buf[:0]
		m.closed = false
	}
	m.runErr = nil

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.connected = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.reg.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Errorw("simulated regulator stopped", "error", err)
			m.mu.Lock()
			m.runErr = err
			m.mu.Unlock()
		}
	}()

	return nil
}

// Close stops the control loop.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.reports)
	m.closed = true
	return multierr.Combine(m.runErr, m.plant.Set(0))
}

// Reports returns the channel of diagnostic reports. It is closed by Close.
func (m *Mock) Reports() <-chan pid.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reports
}

// Send applies a command to the simulated controller.
func (m *Mock) Send(cmd command.Command) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return errors.New("not connected")
	}
	var err error
	m.ctl.do(func(c *pid.Controller) { err = cmd.Apply(c) })
	return err
}

// IsConnected returns whether the simulated device is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Plant exposes the simulated thermal plant.
func (m *Mock) Plant() *sim.Plant {
	return m.plant
}

// lockedController serializes commands with control updates.
type lockedController struct {
	mu  sync.Mutex
	ctl *pid.Controller
}

func (l *lockedController) Update(reading, e float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctl.Update(reading, e)
}

func (l *lockedController) do(f func(c *pid.Controller)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f(l.ctl)
}

// reportWriter decodes the controller's diagnostic lines.
type reportWriter struct {
	out    chan<- pid.Report
	logger golog.Logger
	buf    []byte
}

func (w *reportWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]

		rep, err := pid.ParseReport(line)
		if err != nil {
			w.logger.Debugw("unparsable report", "line", line, "error", err)
			continue
		}
		select {
		case w.out <- rep:
		default:
			w.logger.Warn("reports channel full, dropping report")
		}
	}
	return len(p), nil
}
