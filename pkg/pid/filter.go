package pid

// Second order low-pass section designed for the 10 Hz loop. DC gain is ~1.
var (
	filterNum = [3]float64{0.00000682859420, 0.0000136751884, 0.00000682859420}
	filterDen = [3]float64{1, -1.99259523, 0.99262254}
)

// lowPass is a direct form I biquad.
type lowPass struct {
	x1, x2 float64 // previous inputs
	y1, y2 float64 // previous outputs
}

func (f *lowPass) next(x float64) float64 {
	y := filterNum[0]*x + filterNum[1]*f.x1 + filterNum[2]*f.x2 - filterDen[1]*f.y1 - filterDen[2]*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}
