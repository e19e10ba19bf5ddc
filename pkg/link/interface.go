package link

import (
	"github.com/itohio/gothermo/pkg/command"
	"github.com/itohio/gothermo/pkg/pid"
)

// Device defines the interface for regulator devices (real or simulated).
type Device interface {
	Connect() error
	Close() error
	Reports() <-chan pid.Report
	Send(cmd command.Command) error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
