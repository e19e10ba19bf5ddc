package ad7190_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/sim"
)

const vref = 2.5

func newDevice(t *testing.T, source sim.Source) (*ad7190.Device, *sim.ADC, *sim.Clock) {
	t.Helper()
	bus := sim.NewADC(vref, source)
	clk := sim.NewClock()
	return ad7190.New(bus, clk, vref), bus, clk
}

func testConfig() ad7190.Config {
	cfg := ad7190.DefaultConfig(ad7190.AIN1AIN2)
	cfg.PollInterval = time.Millisecond
	cfg.ReadTimeout = 10 * time.Millisecond
	return cfg
}

func TestInitSequence(t *testing.T) {
	dev, bus, clk := newDevice(t, nil)

	require.NoError(t, dev.InitChannels(ad7190.AIN1AIN2))

	assert.Equal(t, 1, bus.Resets())
	assert.Equal(t, []ad7190.Mode{
		ad7190.ModeSingle,
		ad7190.ModeInternalZeroCal,
		ad7190.ModeInternalFullCal,
		ad7190.ModeSingle,
	}, bus.Modes())
	assert.Equal(t, []sim.Write{
		{Reg: ad7190.RegMode, Value: 0x2C0000},
		{Reg: ad7190.RegMode, Value: 0x8C0000},
		{Reg: ad7190.RegMode, Value: 0xAC0000},
		{Reg: ad7190.RegMode, Value: 0x2C0000},
		{Reg: ad7190.RegConfig, Value: 0x000115},
	}, bus.Writes())
	assert.Equal(t, []time.Duration{
		ad7190.DefaultResetSettle,
		ad7190.DefaultCalibrationSettle,
		ad7190.DefaultCalibrationSettle,
	}, clk.Slept())

	assert.Equal(t, uint32(0x2C0000), bus.Register(ad7190.RegMode))
	assert.Equal(t, uint32(0x000115), bus.Register(ad7190.RegConfig))
	assert.InDelta(t, vref/32, dev.FullScale(), 1e-12)
	assert.Equal(t, ad7190.AIN1AIN2, dev.Config().Channels)
}

func TestReinitRestoresRegisters(t *testing.T) {
	dev, bus, _ := newDevice(t, nil)
	require.NoError(t, dev.InitChannels(ad7190.AIN1AIN2))
	require.NoError(t, dev.WriteRegister(ad7190.RegOffset, 0x123456, 3))
	assert.Equal(t, uint32(0x123456), bus.Register(ad7190.RegOffset))

	cfg := testConfig()
	cfg.Gain = ad7190.Gain1
	require.NoError(t, dev.Init(cfg))
	assert.Equal(t, 2, bus.Resets())
	assert.Equal(t, uint32(0x800000), bus.Register(ad7190.RegOffset))
	assert.InDelta(t, vref, dev.FullScale(), 1e-12)
}

func TestSettleDelaysWithoutInit(t *testing.T) {
	dev, bus, clk := newDevice(t, nil)

	require.NoError(t, dev.Reset())
	require.NoError(t, dev.Calibrate(ad7190.ClockInternalOut))

	assert.Equal(t, 1, bus.Resets())
	assert.Equal(t, []time.Duration{
		ad7190.DefaultResetSettle,
		ad7190.DefaultCalibrationSettle,
		ad7190.DefaultCalibrationSettle,
	}, clk.Slept())
}

func TestInitDefaultsUnsetSettleDelays(t *testing.T) {
	dev, _, clk := newDevice(t, nil)

	cfg := testConfig()
	cfg.ResetSettle = 0
	cfg.CalibrationSettle = 0
	require.NoError(t, dev.Init(cfg))

	assert.Equal(t, []time.Duration{
		ad7190.DefaultResetSettle,
		ad7190.DefaultCalibrationSettle,
		ad7190.DefaultCalibrationSettle,
	}, clk.Slept())
	assert.Equal(t, ad7190.DefaultResetSettle, dev.Config().ResetSettle)
}

func TestID(t *testing.T) {
	dev, _, _ := newDevice(t, nil)
	id, err := dev.ID()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x04), id)
}

func TestRegisterWidthValidation(t *testing.T) {
	dev, bus, _ := newDevice(t, nil)

	assert.ErrorIs(t, dev.WriteRegister(ad7190.RegMode, 0, 0), ad7190.ErrInvalidWidth)
	assert.ErrorIs(t, dev.WriteRegister(ad7190.RegMode, 0, 5), ad7190.ErrInvalidWidth)
	_, err := dev.ReadRegister(ad7190.RegMode, 5)
	assert.ErrorIs(t, err, ad7190.ErrInvalidWidth)
	assert.Empty(t, bus.Writes())
}

func TestReadConversion(t *testing.T) {
	inputs := map[ad7190.Channel]float64{
		ad7190.AIN1AIN2: 0.05,
		ad7190.AIN3AIN4: -0.02,
	}
	dev, bus, clk := newDevice(t, func(ch ad7190.Channel) float64 { return inputs[ch] })
	require.NoError(t, dev.Init(testConfig()))
	start := len(clk.Slept())

	ctx := context.Background()
	v, err := dev.ReadConversion(ctx, ad7190.AIN1AIN2)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, v, 1e-6)

	// polled twice while busy, then re-armed the single conversion
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, clk.Slept()[start:])
	writes := bus.Writes()
	assert.Equal(t, sim.Write{Reg: ad7190.RegMode, Value: 0x2C0000}, writes[len(writes)-1])

	v, err = dev.ReadConversion(ctx, ad7190.AIN3AIN4)
	require.NoError(t, err)
	assert.InDelta(t, -0.02, v, 1e-6)
	assert.Equal(t, ad7190.AIN3AIN4, ad7190.Channel(bus.Register(ad7190.RegConfig)>>8))
}

func TestReadConversionClamps(t *testing.T) {
	dev, _, _ := newDevice(t, func(ad7190.Channel) float64 { return 1 })
	require.NoError(t, dev.Init(testConfig()))

	v, err := dev.ReadConversion(context.Background(), ad7190.AIN1AIN2)
	require.NoError(t, err)
	fs := dev.FullScale()
	assert.Less(t, v, fs)
	assert.InDelta(t, fs, v, 2*fs/(1<<24)+1e-12)
}

func TestReadConversionContinuous(t *testing.T) {
	dev, bus, _ := newDevice(t, func(ad7190.Channel) float64 { return 0.01 })
	cfg := testConfig()
	cfg.Mode = ad7190.ModeContinuous
	require.NoError(t, dev.Init(cfg))
	modes := len(bus.Modes())

	_, err := dev.ReadConversion(context.Background(), ad7190.AIN1AIN2)
	require.NoError(t, err)
	assert.Len(t, bus.Modes(), modes)
}

func TestReadConversionTimeout(t *testing.T) {
	dev, bus, clk := newDevice(t, nil)
	require.NoError(t, dev.Init(testConfig()))
	bus.Stuck = true

	before := clk.Now()
	_, err := dev.ReadConversion(context.Background(), ad7190.AIN1AIN2)
	assert.ErrorIs(t, err, ad7190.ErrNotReady)
	assert.Equal(t, 10*time.Millisecond, clk.Now().Sub(before))
}

func TestReadConversionCanceled(t *testing.T) {
	dev, bus, _ := newDevice(t, nil)
	cfg := testConfig()
	cfg.ReadTimeout = 0
	require.NoError(t, dev.Init(cfg))
	bus.Stuck = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dev.ReadConversion(ctx, ad7190.AIN1AIN2)
	assert.ErrorIs(t, err, context.Canceled)
}
