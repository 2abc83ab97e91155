package dxl

import (
	"io"
	"time"
)

// Transport is the interface for low-level communication with the
// servo bus. The abstraction allows testing with mock implementations.
type Transport interface {
	io.ReadWriteCloser

	// SetBaudRate renegotiates the line speed on the open port.
	SetBaudRate(baud int) error

	// SetReadTimeout sets the read timeout duration.
	SetReadTimeout(timeout time.Duration) error

	// Flush discards any buffered input data.
	Flush() error
}
