// Package regulator is the fixed-period caller that feeds ADC conversions
// into the heater controller.
package regulator

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/pid"
)

// Converter reads a conversion from the selected ADC channels.
type Converter interface {
	ReadConversion(ctx context.Context, channels ad7190.Channel) (float64, error)
}

// Controller consumes a sensor reading and an error signal.
type Controller interface {
	Update(reading, e float64) error
}

var (
	_ Converter  = (*ad7190.Device)(nil)
	_ Controller = (*pid.Controller)(nil)
)

// Clock is the time source the control period is measured against.
type Clock interface {
	Now() time.Time
}

// Channels selects which converter inputs carry the sensor and the error signal.
type Channels struct {
	Sensor ad7190.Channel
	Error  ad7190.Channel
}

// Regulator runs the ADC -> controller pipeline.
type Regulator struct {
	adc      Converter
	ctl      Controller
	channels Channels
	period   time.Duration
	clock    Clock
	logger   golog.Logger

	skipped  uint64
	cycles   uint64
	overruns uint64
}

// New creates a regulator calling ctl every period. A nil clk uses the wall clock.
func New(adc Converter, ctl Controller, channels Channels, period time.Duration, clk Clock, logger golog.Logger) *Regulator {
	if period <= 0 {
		period = pid.DefaultInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Regulator{
		adc:      adc,
		ctl:      ctl,
		channels: channels,
		period:   period,
		clock:    clk,
		logger:   logger,
	}
}

// Step performs one control period.
func (r *Regulator) Step(ctx context.Context) error {
	reading, err := r.adc.ReadConversion(ctx, r.channels.Sensor)
	if err != nil {
		return err
	}
	e, err := r.adc.ReadConversion(ctx, r.channels.Error)
	if err != nil {
		return err
	}
	r.cycles++
	return r.ctl.Update(reading, e)
}

// Run calls Step every period until ctx is done. Periods where the converter
// is not ready are skipped; any other error stops the loop.
func (r *Regulator) Run(ctx context.Context) error {
	for {
		start := r.clock.Now()
		if err := r.Step(ctx); err != nil {
			if !errors.Is(err, ad7190.ErrNotReady) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			r.skipped++
			r.logger.Warnw("conversion not ready, skipping period", "skipped", r.skipped)
		}

		wait := r.period - r.clock.Now().Sub(start)
		if wait < 0 {
			r.overruns++
			r.logger.Debugw("control period overrun", "by", -wait)
			wait = 0
		}
		if !utils.SelectContextOrWait(ctx, wait) {
			return ctx.Err()
		}
	}
}

// Stats returns the number of completed and skipped periods.
func (r *Regulator) Stats() (cycles, skipped uint64) {
	return r.cycles, r.skipped
}

// Overruns returns the number of periods whose step took longer than the period.
func (r *Regulator) Overruns() uint64 {
	return r.overruns
}
