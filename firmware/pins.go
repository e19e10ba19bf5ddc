package main

import (
	"machine"

	"github.com/itohio/gothermo/pkg/ad7190"
)

const (
	// Sensor divider ADC
	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12
	PIN_SENSOR_ADC   = machine.A1

	// AD7190
	PIN_ADC_CS    = machine.D3
	ADC_VREF      = 2.5
	ADC_SPI_FREQ  = ad7190.SPIFrequency
	ERROR_CHANNEL = ad7190.AIN1AIN2

	// Heater driver on the 10-bit DAC (A0). Drive levels are 12-bit.
	DAC_SHIFT = 4

	// Host link. A report line is ~100 bytes every 4 s, commands are rare.
	UART_BAUD_RATE = 115200
	CMD_BUFFER     = 32
)
