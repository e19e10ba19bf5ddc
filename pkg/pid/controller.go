// Package pid implements the heater control loop: a low-pass filtered error,
// a least-squares derivative, an anti-windup integral and a square root
// actuator mapping.
//
// Gains, filter and output scaling are fixed to the regulator hardware; only
// the gains, verbosity and heater enable are expected to change at run time.
package pid

import (
	"io"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultInterval is the sampling interval the filter was designed for.
	DefaultInterval = 100 * time.Millisecond
	// DefaultDecimation is the number of updates per full control computation.
	DefaultDecimation = 40

	// SupplyVoltage is the heater driver supply.
	SupplyVoltage = 5.0
	// DriveRange is the full-scale actuator value.
	DriveRange = 4095

	windupLimit  = 10
	outputOffset = 0.7 // driver transistor Vbe
	maxDrive     = 5.0
)

// Gains holds the PID gains.
type Gains struct {
	Kp, Ki, Kd float64
}

// Actuator accepts a drive level in 0..DriveRange.
type Actuator interface {
	Set(value uint16) error
}

// Clock is the time source for elapsed time reporting.
type Clock interface {
	Now() time.Time
}

// Settings configure a Controller.
type Settings struct {
	Gains
	Interval   time.Duration // sampling interval dt
	Decimation int           // full computation every Decimation updates
	Verbose    bool
	Output     io.Writer // diagnostic reports, best effort; may be nil
	Clock      Clock     // nil uses the wall clock
}

// Controller is a single heater control loop. It is not safe for concurrent use.
type Controller struct {
	Gains
	Verbose bool
	Heat    int // heater enable multiplier; the drive level is clamped to DriveRange

	dt         float64
	decimation int
	count      int

	act   Actuator
	diag  io.Writer
	clock Clock
	start time.Time

	lp    lowPass
	deriv slope

	integral   float64
	filtered   float64
	derivative float64
	pout       float64
	vout       float64
	drive      uint16

	last    Report
	line    []byte
	dropped int
}

// New creates a controller driving act.
func New(s Settings, act Actuator) *Controller {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Decimation < 1 {
		s.Decimation = 1
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	dt := s.Interval.Seconds()
	return &Controller{
		Gains:      s.Gains,
		Verbose:    s.Verbose,
		Heat:       1,
		dt:         dt,
		decimation: s.Decimation,
		act:        act,
		diag:       s.Output,
		clock:      s.Clock,
		start:      s.Clock.Now(),
		deriv:      newSlope(dt),
	}
}

// Update runs one control period for a sensor reading and error signal.
// The actuator is written on every call; the output is recomputed only once
// every Decimation calls. The returned error comes from the actuator.
func (c *Controller) Update(reading, e float64) error {
	temp := Temperature(reading)
	elapsed := c.clock.Now().Sub(c.start).Seconds()

	c.accumulate(e)
	c.filtered = c.lp.next(e)
	c.derivative = c.deriv.push(c.filtered)

	if c.count == 0 {
		c.compute()
		c.last = Report{
			Elapsed:     elapsed,
			Reading:     reading,
			Temperature: temp,
			Error:       e,
			P:           -c.Kp * c.filtered,
			I:           -c.Ki * c.integral,
			D:           -c.Kd * c.derivative,
			Output:      c.pout,
			Drive:       c.vout,
		}
		if c.Verbose && c.diag != nil {
			c.line = c.last.AppendFormat(c.line[:0])
			if _, err := c.diag.Write(c.line); err != nil {
				c.dropped++
			}
		}
	}

	c.drive = driveLevel(c.vout, c.Heat)
	var err error
	if c.act != nil {
		err = c.act.Set(c.drive)
	}
	c.count = (c.count + 1) % c.decimation
	return err
}

// accumulate integrates the raw error and clamps Ki*integral to ±windupLimit.
func (c *Controller) accumulate(e float64) {
	c.integral += e * c.dt
	if c.Ki*c.integral >= windupLimit {
		c.integral = windupLimit / c.Ki
	} else if c.Ki*c.integral <= -windupLimit {
		c.integral = -windupLimit / c.Ki
	}
}

func (c *Controller) compute() {
	c.pout = -(c.Kp*c.filtered + c.Ki*c.integral + c.Kd*c.derivative)
	if c.pout < 0 || math.IsNaN(c.pout) {
		c.pout = 0
		c.vout = 0
		return
	}
	c.vout = (math.Sqrt(c.pout) + outputOffset) * maxDrive / SupplyVoltage
	if c.vout > maxDrive {
		c.vout = maxDrive
	}
}

func driveLevel(vout float64, heat int) uint16 {
	v := vout / SupplyVoltage * DriveRange * float64(heat)
	if !(v > 0) {
		return 0
	}
	if v > DriveRange {
		return DriveRange
	}
	return uint16(v)
}

// SetStartTime restarts the elapsed time reported in diagnostics.
func (c *Controller) SetStartTime() {
	c.start = c.clock.Now()
}

// SetIntegral overwrites the integral accumulator.
func (c *Controller) SetIntegral(v float64) {
	c.integral = v
}

// Integral returns the integral accumulator.
func (c *Controller) Integral() float64 { return c.integral }

// Filtered returns the last low-pass filtered error.
func (c *Controller) Filtered() float64 { return c.filtered }

// Derivative returns the last derivative estimate.
func (c *Controller) Derivative() float64 { return c.derivative }

// Output returns the control output and the drive voltage of the last full computation.
func (c *Controller) Output() (pout, vout float64) { return c.pout, c.vout }

// Drive returns the last actuator level written.
func (c *Controller) Drive() uint16 { return c.drive }

// Window returns the derivative window, oldest first.
func (c *Controller) Window() [WindowSize]float64 { return c.deriv.window() }

// DroppedReports returns how many diagnostic reports failed to write.
func (c *Controller) DroppedReports() int { return c.dropped }

// Last returns the report of the last full computation.
func (c *Controller) Last() Report { return c.last }
