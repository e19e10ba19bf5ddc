package pid

import (
	"fmt"
	"strconv"
	"strings"
)

// Report is the diagnostic record emitted on every full control cycle.
type Report struct {
	Elapsed     float64 // seconds since the start time
	Reading     float64 // raw sensor divider reading (V)
	Temperature float64 // degrees Celsius
	Error       float64 // raw error input
	P           float64 // proportional contribution
	I           float64 // integral contribution
	D           float64 // derivative contribution
	Output      float64 // control output after clamping
	Drive       float64 // actuator drive voltage
}

// reportFields is the number of columns in a report line.
const reportFields = 9

var reportDecimals = [reportFields]int{2, 6, 6, 9, 6, 6, 6, 6, 6}

func (r Report) values() [reportFields]float64 {
	return [reportFields]float64{r.Elapsed, r.Reading, r.Temperature, r.Error, r.P, r.I, r.D, r.Output, r.Drive}
}

// AppendFormat appends the report as one newline terminated line.
// Non-negative values get a leading space so columns stay aligned.
func (r Report) AppendFormat(b []byte) []byte {
	for i, v := range r.values() {
		if i > 0 {
			b = append(b, ' ')
		}
		if v >= 0 {
			b = append(b, ' ')
		}
		b = strconv.AppendFloat(b, v, 'f', reportDecimals[i], 64)
	}
	return append(b, '\n')
}

func (r Report) String() string {
	return string(r.AppendFormat(nil))
}

// ParseReport parses a line produced by AppendFormat.
func ParseReport(line string) (Report, error) {
	fields := strings.Fields(line)
	if len(fields) != reportFields {
		return Report{}, fmt.Errorf("invalid report: expected %d fields, got %d", reportFields, len(fields))
	}
	var v [reportFields]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Report{}, fmt.Errorf("invalid report field %d: %w", i, err)
		}
		v[i] = x
	}
	return Report{
		Elapsed:     v[0],
		Reading:     v[1],
		Temperature: v[2],
		Error:       v[3],
		P:           v[4],
		I:           v[5],
		D:           v[6],
		Output:      v[7],
		Drive:       v[8],
	}, nil
}
