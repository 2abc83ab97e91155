package transports

import (
	"io"
	"time"
)

// MockTransport implements dxl.Transport for testing.
type MockTransport struct {
	ReadData    []byte
	ReadErr     error
	WriteData   []byte
	WriteErr    error
	Closed      bool
	CloseCount  int
	BaudRates   []int
	BaudErr     error
	ReadTimeout time.Duration
	Flushed     bool

	// OnWrite, when set, is called with each written packet; its return
	// value is appended to the pending read data. This lets tests
	// script one response per transaction.
	OnWrite func(p []byte) []byte

	// ReadFunc allows custom read behavior for complex tests.
	ReadFunc func(p []byte) (int, error)
}

func (m *MockTransport) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.WriteData = append(m.WriteData, p...)
	if m.OnWrite != nil {
		m.ReadData = append(m.ReadData, m.OnWrite(p)...)
	}
	return len(p), nil
}

func (m *MockTransport) Close() error {
	m.Closed = true
	m.CloseCount++
	return nil
}

func (m *MockTransport) SetBaudRate(baud int) error {
	if m.BaudErr != nil {
		return m.BaudErr
	}
	m.BaudRates = append(m.BaudRates, baud)
	return nil
}

func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.ReadTimeout = timeout
	return nil
}

func (m *MockTransport) Flush() error {
	m.Flushed = true
	// Keep ReadData - tests preload mock response data.
	return nil
}
