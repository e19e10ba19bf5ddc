package pid

import "math"

// Thermistor divider and Steinhart-Hart coefficients of the sensor assembly.
const (
	thermA = 0.001125308852122
	thermB = 0.000234711863267
	thermC = 0.000000085663516

	// DividerReference is the voltage across the thermistor divider.
	DividerReference = 2.5
	// DividerResistance is the fixed divider resistor in ohms.
	DividerResistance = 10000.0

	kelvin = 273.15
)

// Resistance returns the thermistor resistance for a divider reading v.
func Resistance(v float64) float64 {
	return DividerResistance * v / (DividerReference - v)
}

// Temperature converts a divider reading to degrees Celsius. Readings outside
// the divider range give NaN.
func Temperature(v float64) float64 {
	r := Resistance(v)
	if !(r > 0) || math.IsInf(r, 0) {
		return math.NaN()
	}
	l := math.Log(r)
	return 1/(thermA+thermB*l+thermC*l*l*l) - kelvin
}

// ThermistorResistance inverts the Steinhart-Hart fit for a temperature in degrees Celsius.
func ThermistorResistance(tempC float64) float64 {
	y := 1 / (tempC + kelvin)
	x := (y - thermA) / thermB
	for i := 0; i < 8; i++ {
		f := thermA + thermB*x + thermC*x*x*x - y
		x -= f / (thermB + 3*thermC*x*x)
	}
	return math.Exp(x)
}

// DividerVoltage is the divider reading produced by a thermistor resistance r.
func DividerVoltage(r float64) float64 {
	return DividerReference * r / (DividerResistance + r)
}
