package dxl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dxltools/dxldiag/dxl/transports"
)

// Bus manages communication with servos on a Dynamixel bus. All
// transactions are serialized: the bus is half-duplex and strictly
// one request may be outstanding at a time.
type Bus struct {
	transport Transport
	protocol  *Protocol
	timeout   time.Duration

	mu          sync.Mutex
	lastCmdTime time.Time
	minCmdGap   time.Duration
	scanGap     time.Duration
	closed      bool
}

// Config holds configuration for opening a Bus.
type Config struct {
	// Transport is the underlying communication transport.
	// If nil, Port must be specified to open a serial connection.
	Transport Transport

	// Port is the serial port path (e.g., "/dev/ttyUSB0").
	// Ignored if Transport is provided.
	Port string

	// BaudRate is the initial line speed. Default is 57600.
	BaudRate int

	// Timeout for a single transaction. Default is 500ms.
	Timeout time.Duration

	// MinCommandGap is the minimum time between transactions.
	// Default is 1ms.
	MinCommandGap time.Duration

	// ScanGap is the delay inserted between ping transactions during a
	// Scan, regardless of outcome. Default is 10ms.
	ScanGap time.Duration
}

// Open creates a bus from the given configuration. All failure modes,
// including those the underlying port reports through panics or
// sentinel codes in other SDKs, surface here as a plain error.
func Open(cfg Config) (*Bus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 57600
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.MinCommandGap == 0 {
		cfg.MinCommandGap = time.Millisecond
	}
	if cfg.ScanGap == 0 {
		cfg.ScanGap = 10 * time.Millisecond
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Port == "" {
			return nil, fmt.Errorf("either Transport or Port must be specified")
		}
		var err error
		transport, err = transports.OpenSerial(transports.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Bus{
		transport:   transport,
		protocol:    NewProtocol(),
		timeout:     cfg.Timeout,
		minCmdGap:   cfg.MinCommandGap,
		scanGap:     cfg.ScanGap,
		lastCmdTime: time.Now(),
	}, nil
}

// Close closes the bus and releases the port. Safe to call more than
// once; the transport is closed at most once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	return b.transport.Close()
}

// SetBaudRate renegotiates the line speed. Distinct fallible step from
// Open: a port can open fine and still refuse a nonstandard rate.
func (b *Bus) SetBaudRate(baud int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if baud <= 0 {
		return fmt.Errorf("invalid baud rate: %d", baud)
	}

	return b.transport.SetBaudRate(baud)
}

// Protocol returns the packet handler for this bus.
func (b *Bus) Protocol() *Protocol {
	return b.protocol
}

// PingInfo is the payload of a successful ping response.
type PingInfo struct {
	ModelNumber int
	Firmware    int
}

// Ping issues one blocking ping transaction against the given ID.
func (b *Bus) Ping(ctx context.Context, id int) (PingInfo, error) {
	if err := b.validateID(id); err != nil {
		return PingInfo{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return PingInfo{}, ErrBusClosed
	}

	packet := b.protocol.PingPacket(byte(id))
	if err := b.sendPacketLocked(packet); err != nil {
		return PingInfo{}, &CommError{Op: "ping", Err: err}
	}

	// Ping status carries model number (2) + firmware version (1).
	resp, err := b.readStatusLocked(ctx, 3)
	if err != nil {
		return PingInfo{}, &ServoError{ID: id, Op: "ping", Err: err}
	}

	if resp.ID != byte(id) {
		return PingInfo{}, &ServoError{ID: id, Op: "ping", Err: fmt.Errorf("response from wrong ID %d", resp.ID)}
	}
	if resp.Error.HasError() {
		return PingInfo{}, &ServoError{ID: id, Op: "ping", Status: resp.Error}
	}
	if len(resp.Parameters) < 3 {
		return PingInfo{}, &ServoError{ID: id, Op: "ping", Err: ErrInvalidPacket}
	}

	return PingInfo{
		ModelNumber: int(b.protocol.ByteOrder().Uint16(resp.Parameters[0:2])),
		Firmware:    int(resp.Parameters[2]),
	}, nil
}

// ReadRegister issues one blocking read transaction for the given
// control table entry and returns the decoded unsigned value.
func (b *Bus) ReadRegister(ctx context.Context, id int, reg Register) (uint32, error) {
	if err := b.validateID(id); err != nil {
		return 0, err
	}
	if reg.Size != 1 && reg.Size != 2 && reg.Size != 4 {
		return 0, fmt.Errorf("unsupported register size %d for %q", reg.Size, reg.Name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBusClosed
	}

	packet := b.protocol.ReadPacket(byte(id), reg.Address, uint16(reg.Size))
	if err := b.sendPacketLocked(packet); err != nil {
		return 0, &CommError{Op: "read", Err: err}
	}

	resp, err := b.readStatusLocked(ctx, reg.Size)
	if err != nil {
		return 0, &ServoError{ID: id, Op: "read " + reg.Name, Err: err}
	}

	if resp.ID != byte(id) {
		return 0, &ServoError{ID: id, Op: "read " + reg.Name, Err: fmt.Errorf("response from wrong ID %d", resp.ID)}
	}
	if resp.Error.HasError() {
		return 0, &ServoError{ID: id, Op: "read " + reg.Name, Status: resp.Error}
	}
	if len(resp.Parameters) < reg.Size {
		return 0, &ServoError{ID: id, Op: "read " + reg.Name, Err: ErrInvalidPacket}
	}

	return b.protocol.DecodeValue(resp.Parameters[:reg.Size]), nil
}

// FoundServo represents a servo discovered during scanning.
type FoundServo struct {
	ID          int
	ModelNumber int
	Firmware    int
}

// Scan pings each ID in [startID, endID] in ascending order. A
// non-responding ID is excluded from the result; no transaction is
// retried. A fixed gap is inserted between transactions to avoid
// saturating the shared bus.
func (b *Bus) Scan(ctx context.Context, startID, endID int) ([]FoundServo, error) {
	if startID < 0 || endID > MaxServoID || startID > endID {
		return nil, fmt.Errorf("invalid ID range: %d to %d", startID, endID)
	}

	var found []FoundServo

	for id := startID; id <= endID; id++ {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		info, err := b.Ping(ctx, id)
		if err == nil {
			found = append(found, FoundServo{
				ID:          id,
				ModelNumber: info.ModelNumber,
				Firmware:    info.Firmware,
			})
		}

		time.Sleep(b.scanGap)
	}

	return found, nil
}

// Internal methods

func (b *Bus) validateID(id int) error {
	if id < 0 || id > MaxServoID {
		return fmt.Errorf("%w: %d (valid range: 0-%d)", ErrInvalidID, id, MaxServoID)
	}
	return nil
}

func (b *Bus) enforceCommandGap() {
	elapsed := time.Since(b.lastCmdTime)
	if elapsed < b.minCmdGap {
		time.Sleep(b.minCmdGap - elapsed)
	}
}

func (b *Bus) sendPacketLocked(packet []byte) error {
	b.enforceCommandGap()

	// Drop stale input from an earlier, late response.
	b.transport.Flush()

	n, err := b.transport.Write(packet)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("incomplete write: %d of %d bytes", n, len(packet))
	}

	b.lastCmdTime = time.Now()

	// Half-duplex turnaround.
	time.Sleep(100 * time.Microsecond)

	return nil
}

func (b *Bus) readStatusLocked(ctx context.Context, paramLen int) (Packet, error) {
	data, err := b.readRawBytesLocked(ctx, b.protocol.ExpectedResponseLength(paramLen))
	if err != nil {
		return Packet{}, err
	}

	pkt, _, err := b.protocol.Decode(data)
	return pkt, err
}

func (b *Bus) readRawBytesLocked(ctx context.Context, expectedLen int) ([]byte, error) {
	buffer := make([]byte, expectedLen*2) // headroom for stuffing
	totalRead := 0
	deadline := time.Now().Add(b.timeout)

	for totalRead < expectedLen {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			if totalRead == 0 {
				return nil, ErrNoResponse
			}
			return nil, fmt.Errorf("%w: read %d of %d expected bytes", ErrTimeout, totalRead, expectedLen)
		}

		remaining := max(time.Until(deadline), 10*time.Millisecond)
		b.transport.SetReadTimeout(remaining)

		n, err := b.transport.Read(buffer[totalRead:])
		if err != nil {
			if n == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("read error: %w", err)
		}

		totalRead += n
	}

	return buffer[:totalRead], nil
}
