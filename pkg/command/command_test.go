package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gothermo/pkg/pid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr bool
	}{
		{name: "proportional gain", line: "kp 400", want: Command{Name: SetKp, Value: 400}},
		{name: "upper case with spaces", line: "  KI  2.5 \r", want: Command{Name: SetKi, Value: 2.5}},
		{name: "negative integral", line: "integral -0.25", want: Command{Name: SetIntegral, Value: -0.25}},
		{name: "heater off", line: "heat 0", want: Command{Name: SetHeat}},
		{name: "start time", line: "start", want: Command{Name: StartTime}},
		{name: "empty", line: "   ", wantErr: true},
		{name: "unknown", line: "kz 1", wantErr: true},
		{name: "missing value", line: "kd", wantErr: true},
		{name: "extra value", line: "start 1", wantErr: true},
		{name: "bad number", line: "kp fast", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("reboot")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestFormatRoundTrip(t *testing.T) {
	for _, c := range []Command{
		{Name: SetKp, Value: 400},
		{Name: SetKd, Value: 0.125},
		{Name: SetVerbose, Value: 1},
		{Name: StartTime},
	} {
		line := c.String()
		assert.Equal(t, byte('\n'), line[len(line)-1])
		got, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	assert.Equal(t, "kp 400\n", Command{Name: SetKp, Value: 400}.String())
	assert.Equal(t, "start\n", Command{Name: StartTime}.String())
}

func TestApply(t *testing.T) {
	ctl := pid.New(pid.Settings{Gains: pid.Gains{Kp: 1, Ki: 1, Kd: 1}, Decimation: 1}, nil)

	for _, line := range []string{"kp 400", "ki 20", "kd 50", "integral 0.1", "heat 0", "verbose 1", "start"} {
		c, err := Parse(line)
		require.NoError(t, err)
		require.NoError(t, c.Apply(ctl), line)
	}

	assert.Equal(t, pid.Gains{Kp: 400, Ki: 20, Kd: 50}, ctl.Gains)
	assert.Equal(t, 0.1, ctl.Integral())
	assert.Equal(t, 0, ctl.Heat)
	assert.True(t, ctl.Verbose)

	assert.ErrorIs(t, Command{Name: "reboot"}.Apply(ctl), ErrUnknown)
}
