// Package command encodes the line commands the host sends to the firmware
// to retune a running controller.
//
// Format: "<name> [value]\n", e.g. "kp 400", "heat 0", "start".
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/gothermo/pkg/pid"
)

// ErrUnknown is returned for command names the firmware does not understand.
var ErrUnknown = errors.New("unknown command")

// Name identifies a command.
type Name string

const (
	SetKp       Name = "kp"
	SetKi       Name = "ki"
	SetKd       Name = "kd"
	SetIntegral Name = "integral"
	SetHeat     Name = "heat"
	SetVerbose  Name = "verbose"
	StartTime   Name = "start"
)

// Command is a single controller adjustment.
type Command struct {
	Name  Name
	Value float64
}

func hasValue(n Name) (bool, error) {
	switch n {
	case SetKp, SetKi, SetKd, SetIntegral, SetHeat, SetVerbose:
		return true, nil
	case StartTime:
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknown, string(n))
}

// AppendFormat appends the newline terminated command line.
func (c Command) AppendFormat(b []byte) []byte {
	b = append(b, string(c.Name)...)
	if ok, _ := hasValue(c.Name); ok {
		b = append(b, ' ')
		b = strconv.AppendFloat(b, c.Value, 'g', -1, 64)
	}
	return append(b, '\n')
}

func (c Command) String() string {
	return string(c.AppendFormat(nil))
}

// Parse parses one command line.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}
	c := Command{Name: Name(strings.ToLower(fields[0]))}
	want, err := hasValue(c.Name)
	if err != nil {
		return Command{}, err
	}
	if !want {
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%s takes no value", c.Name)
		}
		return c, nil
	}
	if len(fields) != 2 {
		return Command{}, fmt.Errorf("%s expects one value", c.Name)
	}
	c.Value, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Command{}, fmt.Errorf("%s: %w", c.Name, err)
	}
	return c, nil
}

// Apply performs the command on ctl.
func (c Command) Apply(ctl *pid.Controller) error {
	switch c.Name {
	case SetKp:
		ctl.Kp = c.Value
	case SetKi:
		ctl.Ki = c.Value
	case SetKd:
		ctl.Kd = c.Value
	case SetIntegral:
		ctl.SetIntegral(c.Value)
	case SetHeat:
		ctl.Heat = int(c.Value)
	case SetVerbose:
		ctl.Verbose = c.Value != 0
	case StartTime:
		ctl.SetStartTime()
	default:
		return fmt.Errorf("%w: %q", ErrUnknown, string(c.Name))
	}
	return nil
}
