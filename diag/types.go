package diag

import (
	"context"

	"github.com/dxltools/dxldiag/dxl"
)

// Options configures a diagnostic run.
type Options struct {
	// Port is the device path to test. Empty means autodetect.
	Port string

	// BaudRate to negotiate after opening. Default 57600.
	BaudRate int

	// ScanIDs controls whether the ID scan step runs.
	ScanIDs bool

	// MaxID is the inclusive upper bound of the scan; scanning starts
	// at 1. Default 20.
	MaxID int
}

// DefaultOptions returns the standard diagnostic configuration.
func DefaultOptions() Options {
	return Options{
		BaudRate: 57600,
		ScanIDs:  true,
		MaxID:    20,
	}
}

// MotorBus is the slice of the bus layer the runner needs. Satisfied
// by *dxl.Bus; fakes stand in for it in tests.
type MotorBus interface {
	SetBaudRate(baud int) error
	Ping(ctx context.Context, id int) (dxl.PingInfo, error)
	ReadRegister(ctx context.Context, id int, reg dxl.Register) (uint32, error)
	Close() error
}

// BusOpener opens a bus on a port at the default line speed. The
// runner negotiates the requested baud rate as a separate step.
type BusOpener interface {
	Open(port string) (MotorBus, error)
}

// OpenerFunc adapts a function to the BusOpener interface.
type OpenerFunc func(port string) (MotorBus, error)

func (f OpenerFunc) Open(port string) (MotorBus, error) {
	return f(port)
}
