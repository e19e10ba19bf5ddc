package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/pid"
)

// PlantConfig describes the simulated thermal mass.
type PlantConfig struct {
	Ambient          float64 // °C
	Setpoint         float64 // °C the bridge is balanced at
	HeatCapacity     float64 // J/K
	Loss             float64 // W/K to ambient
	HeaterResistance float64 // ohm
	Noise            float64 // V, uniform on the sensor reading
}

// Plant is a first order thermal model heated by a resistive heater. It
// implements pid.Actuator and integrates over the time between drive changes.
type Plant struct {
	mu    sync.Mutex
	cfg   PlantConfig
	clock pid.Clock
	rnd   *rand.Rand

	temp  float64
	level uint16
	last  time.Time
}

var _ pid.Actuator = (*Plant)(nil)

// NewPlant creates a plant at ambient temperature.
func NewPlant(cfg PlantConfig, clk pid.Clock) *Plant {
	return &Plant{
		cfg:   cfg,
		clock: clk,
		rnd:   rand.New(rand.NewSource(1)),
		temp:  cfg.Ambient,
		last:  clk.Now(),
	}
}

// Set applies a new drive level after integrating the previous one.
func (p *Plant) Set(level uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.level = level
	return nil
}

func (p *Plant) advance() {
	now := p.clock.Now()
	dt := now.Sub(p.last).Seconds()
	p.last = now
	if dt <= 0 || p.cfg.HeatCapacity <= 0 {
		return
	}
	v := float64(p.level) / pid.DriveRange * pid.SupplyVoltage
	var heat float64
	if p.cfg.HeaterResistance > 0 {
		heat = v * v / p.cfg.HeaterResistance
	}
	loss := p.cfg.Loss * (p.temp - p.cfg.Ambient)
	p.temp += (heat - loss) * dt / p.cfg.HeatCapacity
}

// Temperature returns the current plant temperature.
func (p *Plant) Temperature() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.temp
}

// Level returns the last drive level.
func (p *Plant) Level() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// SensorVoltage is the thermistor divider reading.
func (p *Plant) SensorVoltage() float64 {
	v := pid.DividerVoltage(pid.ThermistorResistance(p.Temperature()))
	if p.cfg.Noise > 0 {
		p.mu.Lock()
		v += (p.rnd.Float64()*2 - 1) * p.cfg.Noise
		p.mu.Unlock()
	}
	return v
}

// ErrorVoltage is the bridge output: the setpoint arm minus the sensor arm.
// It is negative when the plant is colder than the setpoint.
func (p *Plant) ErrorVoltage() float64 {
	target := pid.DividerVoltage(pid.ThermistorResistance(p.cfg.Setpoint))
	return target - pid.DividerVoltage(pid.ThermistorResistance(p.Temperature()))
}

// Source routes sensor channels to the divider and error channels to the bridge.
func (p *Plant) Source(sensor, bridge ad7190.Channel) Source {
	return func(channels ad7190.Channel) float64 {
		switch {
		case channels&bridge != 0:
			return p.ErrorVoltage()
		case channels&sensor != 0:
			return p.SensorVoltage()
		}
		return 0
	}
}
