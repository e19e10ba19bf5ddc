package pid

// WindowSize is the number of filtered samples the derivative is fitted over.
const WindowSize = 5

// Weights returns the least-squares slope estimator for WindowSize samples
// spaced dt apart, ordered oldest first. The weights sum to zero.
func Weights(dt float64) [WindowSize]float64 {
	const n = WindowSize
	a := float64(n*(n-1)*(2*n-1)/6) * dt * dt // sum of t^2
	b := float64(n*(n-1)/2) * dt              // sum of t
	coef := 1 / (a*n - b*b)

	var w [WindowSize]float64
	for i := range w {
		w[i] = coef * (n*float64(i)*dt - b)
	}
	return w
}

// slope fits a line through the last WindowSize samples.
type slope struct {
	w   [WindowSize]float64
	y   [WindowSize]float64
	ind int // next slot to overwrite, i.e. the oldest sample
}

func newSlope(dt float64) slope {
	return slope{w: Weights(dt)}
}

// push stores v over the oldest sample and returns the fitted slope.
func (s *slope) push(v float64) float64 {
	s.y[s.ind] = v
	s.ind = (s.ind + 1) % WindowSize

	var d float64
	for i, w := range s.w {
		d += w * s.y[(s.ind+i)%WindowSize]
	}
	return d
}

// window returns the samples ordered oldest first.
func (s *slope) window() [WindowSize]float64 {
	var out [WindowSize]float64
	for i := range out {
		out[i] = s.y[(s.ind+i)%WindowSize]
	}
	return out
}
