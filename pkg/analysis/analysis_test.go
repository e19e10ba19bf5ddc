package analysis

import (
	"errors"
	"math"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gothermo/pkg/pid"
)

// ramp returns n reports 4 s apart warming by 0.1 °C per report.
func ramp(n int) []pid.Report {
	reports := make([]pid.Report, n)
	for i := range reports {
		reports[i] = pid.Report{
			Elapsed:     float64(4 * i),
			Temperature: 20 + 0.1*float64(i),
			Error:       1,
			Drive:       2.5,
		}
	}
	return reports
}

func TestLoad(t *testing.T) {
	a := pid.Report{Elapsed: 4, Reading: 1.3, Temperature: 21.5, Error: -0.4, Output: 0.3, Drive: 1.25}
	b := pid.Report{Elapsed: 8, Reading: 1.2, Temperature: 23.1, Error: -0.3, Output: 0.28, Drive: 5}
	input := "ad7190 ready\n" + a.String() + "\n" + b.String() + "1 2 3\n"

	reports, skipped, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []pid.Report{a, b}, reports)
	assert.Equal(t, 3, skipped)
}

func TestLoadReadError(t *testing.T) {
	_, _, err := Load(iotest.ErrReader(errors.New("disk gone")))
	assert.ErrorContains(t, err, "disk gone")
}

func TestSummarize(t *testing.T) {
	reports := ramp(11)
	reports[10].Drive = pid.SupplyVoltage
	reports[10].Error = -1

	s, err := Summarize(reports)
	require.NoError(t, err)

	assert.Equal(t, 11, s.Reports)
	assert.InDelta(t, 40, s.Duration, 1e-9)
	assert.InDelta(t, 20.5, s.MeanTemp, 1e-9)
	assert.InDelta(t, 21, s.FinalTemp, 1e-9)
	assert.InDelta(t, 0.025, s.Drift, 1e-9)
	assert.InDelta(t, math.Sqrt(0.11), s.StdTemp, 1e-9)
	assert.InDelta(t, 1, s.RMSError, 1e-12)
	assert.InDelta(t, (10*2.5+5)/11.0, s.MeanDrive, 1e-9)
	assert.InDelta(t, 1/11.0, s.Saturation, 1e-12)
	assert.Contains(t, s.String(), "reports:     11")
}

func TestSummarizeSkipsInvalidTemperature(t *testing.T) {
	reports := ramp(3)
	reports[1].Temperature = math.NaN()

	s, err := Summarize(reports)
	require.NoError(t, err)
	assert.InDelta(t, 20.1, s.MeanTemp, 1e-9)
	assert.InDelta(t, 0.025, s.Drift, 1e-9)
}

func TestSummarizeSingle(t *testing.T) {
	s, err := Summarize(ramp(1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Duration)
	assert.InDelta(t, 20, s.MeanTemp, 1e-12)
	assert.True(t, math.IsNaN(s.StdTemp))
	assert.True(t, math.IsNaN(s.Drift))
}

func TestSummarizeEmpty(t *testing.T) {
	_, err := Summarize(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestWindow(t *testing.T) {
	w := NewWindow(10)

	var calls int
	var last Summary
	w.OnUpdate(func(reports []pid.Report, s Summary) {
		calls++
		last = s
		assert.NotEmpty(t, reports)
	})

	for _, r := range ramp(6) {
		w.Add(r)
	}
	assert.Equal(t, 6, calls)

	// 20 s of reports, a 10 s window keeps 12, 16 and 20
	reports := w.Reports()
	require.Len(t, reports, 3)
	assert.Equal(t, 12.0, reports[0].Elapsed)
	assert.Equal(t, 3, last.Reports)
	assert.InDelta(t, 0.025, last.Drift, 1e-9)

	// restarted start time clears the window
	w.Add(pid.Report{Elapsed: 0, Temperature: 30})
	require.Len(t, w.Reports(), 1)

	s, err := w.Summary()
	require.NoError(t, err)
	assert.InDelta(t, 30, s.MeanTemp, 1e-12)
}

func TestWindowProcess(t *testing.T) {
	w := NewWindow(100)
	var calls int
	w.OnUpdate(func([]pid.Report, Summary) { calls++ })

	in := make(chan pid.Report, 5)
	for _, r := range ramp(5) {
		in <- r
	}
	close(in)
	w.Process(in)

	assert.Equal(t, 5, calls)
	assert.Len(t, w.Reports(), 5)

	// no callbacks after the input closed
	w.Add(pid.Report{Elapsed: 100})
	assert.Equal(t, 5, calls)
}

func TestDownsample(t *testing.T) {
	reports := ramp(10)

	got := Downsample(nil, reports, 5)
	require.Len(t, got, 5)
	for i, r := range got {
		assert.Equal(t, float64(8*i), r.Elapsed)
	}

	dst := make([]pid.Report, 0, 20)
	got = Downsample(dst, reports, 20)
	assert.Equal(t, reports, got)
	assert.Equal(t, 20, cap(got))

	assert.Len(t, Downsample(nil, reports, 0), 10)
}
