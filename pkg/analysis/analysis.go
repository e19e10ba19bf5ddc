// Package analysis summarizes recorded controller reports.
package analysis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/itohio/gothermo/pkg/pid"
)

// ErrEmpty is returned when there are no reports to summarize.
var ErrEmpty = errors.New("no reports")

// Summary describes a recorded run.
type Summary struct {
	Reports    int
	Duration   float64 // seconds between first and last report
	MeanTemp   float64 // °C
	StdTemp    float64 // °C
	FinalTemp  float64 // °C
	Drift      float64 // °C/s, least squares slope of temperature over time
	RMSError   float64 // raw error input
	MeanDrive  float64 // V
	Saturation float64 // fraction of reports at full drive
}

// Load reads report lines from r. Lines that are not reports (boot messages,
// partial lines) are skipped and counted.
func Load(r io.Reader) (reports []pid.Report, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rep, err := pid.ParseReport(scanner.Text())
		if err != nil {
			skipped++
			continue
		}
		reports = append(reports, rep)
	}
	if err := scanner.Err(); err != nil {
		return reports, skipped, fmt.Errorf("failed to read reports: %w", err)
	}
	return reports, skipped, nil
}

// Summarize computes run statistics. Reports with a non-finite temperature
// are left out of the temperature statistics.
func Summarize(reports []pid.Report) (Summary, error) {
	if len(reports) == 0 {
		return Summary{}, ErrEmpty
	}

	var (
		elapsed = make([]float64, 0, len(reports))
		temps   = make([]float64, 0, len(reports))
		errs    = make([]float64, len(reports))
		drive   = make([]float64, len(reports))
		full    int
	)
	for i, r := range reports {
		if !math.IsNaN(r.Temperature) && !math.IsInf(r.Temperature, 0) {
			elapsed = append(elapsed, r.Elapsed)
			temps = append(temps, r.Temperature)
		}
		errs[i] = r.Error
		drive[i] = r.Drive
		if r.Drive >= pid.SupplyVoltage {
			full++
		}
	}

	n := float64(len(reports))
	s := Summary{
		Reports:    len(reports),
		Duration:   reports[len(reports)-1].Elapsed - reports[0].Elapsed,
		RMSError:   math.Sqrt(floats.Dot(errs, errs) / n),
		MeanDrive:  stat.Mean(drive, nil),
		Saturation: float64(full) / n,
		MeanTemp:   math.NaN(),
		StdTemp:    math.NaN(),
		FinalTemp:  math.NaN(),
		Drift:      math.NaN(),
	}

	if len(temps) > 0 {
		s.MeanTemp = stat.Mean(temps, nil)
		s.FinalTemp = temps[len(temps)-1]
	}
	if len(temps) > 1 {
		s.StdTemp = stat.StdDev(temps, nil)
		if floats.Max(elapsed) > floats.Min(elapsed) {
			_, s.Drift = stat.LinearRegression(elapsed, temps, nil, false)
		}
	}
	return s, nil
}

// AppendFormat appends a human readable multi-line summary.
func (s Summary) AppendFormat(b []byte) []byte {
	b = fmt.Appendf(b, "reports:     %d\n", s.Reports)
	b = fmt.Appendf(b, "duration:    %.1f s\n", s.Duration)
	b = fmt.Appendf(b, "temperature: %.3f ± %.3f °C (final %.3f)\n", s.MeanTemp, s.StdTemp, s.FinalTemp)
	b = fmt.Appendf(b, "drift:       %.3g °C/s\n", s.Drift)
	b = fmt.Appendf(b, "rms error:   %.6g\n", s.RMSError)
	b = fmt.Appendf(b, "mean drive:  %.3f V (saturated %.1f%%)\n", s.MeanDrive, s.Saturation*100)
	return b
}

func (s Summary) String() string {
	return string(s.AppendFormat(nil))
}

// Downsample decimates reports to at most maxPoints, keeping the first one.
// dst is reused when it has enough capacity.
func Downsample(dst, reports []pid.Report, maxPoints int) []pid.Report {
	if maxPoints <= 0 || len(reports) <= maxPoints {
		return append(dst[:0], reports...)
	}
	if cap(dst) < maxPoints {
		dst = make([]pid.Report, 0, maxPoints)
	}
	dst = dst[:0]
	step := float64(len(reports)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		dst = append(dst, reports[int(float64(i)*step)])
	}
	return dst
}
