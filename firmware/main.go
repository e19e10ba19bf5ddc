//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/command"
	"github.com/itohio/gothermo/pkg/pid"
)

var (
	adcSensor machine.ADC
	uart      = machine.Serial

	adc *ad7190.Device
	ctl *pid.Controller

	// Serial buffer for reading command lines
	cmdBuffer [CMD_BUFFER]byte
	cmdPos    int
)

// dac drives the heater transistor from the SAMD21 DAC.
type dac struct{}

func (dac) Set(level uint16) error {
	return machine.DAC0.Set(level << DAC_SHIFT)
}

func main() {
	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	PIN_SENSOR_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcSensor = machine.ADC{Pin: PIN_SENSOR_ADC}
	adcSensor.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	machine.DAC0.Configure(machine.DACConfig{})

	PIN_ADC_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_ADC_CS.Low()
	machine.SPI0.Configure(machine.SPIConfig{
		Frequency: ADC_SPI_FREQ,
		Mode:      3,
	})

	adc = ad7190.New(machine.SPI0, nil, ADC_VREF)
	for {
		err := adc.InitChannels(ERROR_CHANNEL)
		if err == nil {
			break
		}
		println("ad7190 init failed:", err.Error())
		time.Sleep(time.Second)
	}
	println("ad7190 ready, full scale", adc.FullScale())

	ctl = pid.New(pid.Settings{
		Gains:      pid.Gains{Kp: 400, Ki: 20, Kd: 50},
		Interval:   pid.DefaultInterval,
		Decimation: pid.DefaultDecimation,
		Verbose:    true,
		Output:     uart,
	}, dac{})

	ctx := context.Background()
	next := time.Now()
	for {
		processSerial()

		reading := sensorVolts()
		e, err := adc.ReadConversion(ctx, ERROR_CHANNEL)
		switch {
		case errors.Is(err, ad7190.ErrNotReady):
			println("ad7190 not ready, skipping")
		case err != nil:
			println("ad7190 read failed:", err.Error())
		default:
			if err := ctl.Update(reading, e); err != nil {
				println("heater drive failed:", err.Error())
			}
		}

		next = next.Add(pid.DefaultInterval)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		} else {
			next = time.Now()
		}
	}
}

// sensorVolts returns the thermistor divider voltage.
func sensorVolts() float64 {
	return float64(adcSensor.Get()) / 0xFFFF * ADC_REFERENCE_MV / 1000
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if cmdPos > 0 {
				applyCommand(string(cmdBuffer[:cmdPos]))
			}
			cmdPos = 0
			continue
		}

		if cmdPos < len(cmdBuffer) {
			cmdBuffer[cmdPos] = data
			cmdPos++
		}
	}
}

func applyCommand(line string) {
	cmd, err := command.Parse(line)
	if err == nil {
		err = cmd.Apply(ctl)
	}
	if err != nil {
		println("command failed:", err.Error())
	}
}
