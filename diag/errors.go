// Package diag orchestrates the Dynamixel connection diagnostic
// sequence: port discovery, OS-level access checks, bus open, ID scan
// and register dump.
package diag

import "errors"

// Fatal precondition failures. Each aborts the run; everything else
// the runner reports is advisory and the run continues.
var (
	ErrNoPortsFound     = errors.New("no FTDI ports found")
	ErrInvalidSelection = errors.New("invalid port selection")
	ErrPortNotFound     = errors.New("port does not exist")
	ErrPermissionDenied = errors.New("port lacks read/write permissions")
	ErrAborted          = errors.New("aborted by user")
)
