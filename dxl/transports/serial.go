// Package transports provides Transport implementations for the dxl
// bus layer.
package transports

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport implements dxl.Transport using a hardware serial
// port.
type SerialTransport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
}

// SerialConfig holds configuration for opening a serial port.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// OpenSerial opens a serial port with the given configuration.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}

	if cfg.BaudRate == 0 {
		cfg.BaudRate = 57600
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 500 * time.Millisecond
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &SerialTransport{
		port:     port,
		portName: cfg.Port,
		timeout:  cfg.Timeout,
	}, nil
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

// SetBaudRate renegotiates the line speed without reopening the port.
func (t *SerialTransport) SetBaudRate(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := t.port.SetMode(mode); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", baud, err)
	}
	return nil
}

func (t *SerialTransport) SetReadTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return t.port.SetReadTimeout(timeout)
}

// Flush discards stale input so a fresh transaction does not read a
// previous, late response.
func (t *SerialTransport) Flush() error {
	return t.port.ResetInputBuffer()
}

// PortName returns the serial port name.
func (t *SerialTransport) PortName() string {
	return t.portName
}
