// Package dxl implements the Dynamixel Protocol 2.0 bus layer used to
// probe and read servo motors over a half-duplex serial link.
package dxl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Instruction codes per the Dynamixel Protocol 2.0 specification.
const (
	InstPing      byte = 0x01
	InstRead      byte = 0x02
	InstWrite     byte = 0x03
	InstRegWrite  byte = 0x04
	InstAction    byte = 0x05
	InstReboot    byte = 0x08
	InstStatus    byte = 0x55
	InstSyncRead  byte = 0x82
	InstSyncWrite byte = 0x83
)

// Special ID values.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFC
)

// Packet header: two 0xFF marker bytes, 0xFD, reserved 0x00.
var header = [4]byte{0xFF, 0xFF, 0xFD, 0x00}

// Fixed byte counts around the variable-length portion of a packet.
const (
	// header(4) + id(1) + length(2)
	prefixLen = 7
	// instruction packet overhead beyond params: inst(1) + crc(2)
	instOverhead = 3
	// status packet overhead beyond params: inst(1) + error(1) + crc(2)
	statusOverhead = 4
)

// StatusError is the error field of a status packet. Bit 7 is the
// hardware alert flag; the low bits carry one of the numbered error
// codes below.
type StatusError byte

const (
	alertBit StatusError = 0x80

	errResultFail  StatusError = 0x01
	errInstruction StatusError = 0x02
	errCRC         StatusError = 0x03
	errDataRange   StatusError = 0x04
	errDataLength  StatusError = 0x05
	errDataLimit   StatusError = 0x06
	errAccess      StatusError = 0x07
)

func (e StatusError) Error() string {
	if e == 0 {
		return "no error"
	}

	var msgs []string
	switch e &^ alertBit {
	case 0:
	case errResultFail:
		msgs = append(msgs, "result fail")
	case errInstruction:
		msgs = append(msgs, "instruction error")
	case errCRC:
		msgs = append(msgs, "CRC mismatch")
	case errDataRange:
		msgs = append(msgs, "data range")
	case errDataLength:
		msgs = append(msgs, "data length")
	case errDataLimit:
		msgs = append(msgs, "data limit")
	case errAccess:
		msgs = append(msgs, "access violation")
	default:
		msgs = append(msgs, fmt.Sprintf("code 0x%02X", byte(e&^alertBit)))
	}
	if e&alertBit != 0 {
		msgs = append(msgs, "hardware alert")
	}

	return "servo status error: " + strings.Join(msgs, ", ")
}

// HasError returns true if any error flag is set.
func (e StatusError) HasError() bool {
	return e != 0
}

// Packet represents a Protocol 2.0 packet.
type Packet struct {
	ID          byte
	Instruction byte
	Parameters  []byte
	Error       StatusError // Only valid for status packets
}

// Protocol handles Protocol 2.0 packet encoding and decoding. Values
// on the wire are little-endian.
type Protocol struct{}

// NewProtocol creates a Protocol 2.0 packet handler.
func NewProtocol() *Protocol {
	return &Protocol{}
}

// ByteOrder returns the byte order for multi-byte values.
func (p *Protocol) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

// Encode constructs a wire-format instruction packet.
func (p *Protocol) Encode(pkt Packet) []byte {
	// Stuffing operates on the instruction..params region so that the
	// header pattern can never appear inside the payload.
	body := make([]byte, 0, 1+len(pkt.Parameters))
	body = append(body, pkt.Instruction)
	body = append(body, pkt.Parameters...)
	body = stuff(body)

	length := uint16(len(body) + 2) // + crc

	buf := make([]byte, 0, prefixLen+len(body)+2)
	buf = append(buf, header[:]...)
	buf = append(buf, pkt.ID)
	buf = binary.LittleEndian.AppendUint16(buf, length)
	buf = append(buf, body...)

	crc := updateCRC(0, buf)
	buf = binary.LittleEndian.AppendUint16(buf, crc)

	return buf
}

// Decode parses a status packet from data. Returns the packet and the
// number of bytes consumed, or an error if no complete, valid packet
// is present.
func (p *Protocol) Decode(data []byte) (Packet, int, error) {
	headerIdx := findHeader(data)
	if headerIdx < 0 {
		return Packet{}, 0, errors.New("header not found")
	}

	data = data[headerIdx:]
	if len(data) < prefixLen+statusOverhead {
		return Packet{}, 0, errors.New("packet too short")
	}

	id := data[4]
	length := int(binary.LittleEndian.Uint16(data[5:7]))
	totalLen := prefixLen + length
	if length < statusOverhead {
		return Packet{}, 0, fmt.Errorf("invalid length field: %d", length)
	}
	if len(data) < totalLen {
		return Packet{}, 0, fmt.Errorf("incomplete packet: need %d bytes, have %d", totalLen, len(data))
	}

	expectedCRC := updateCRC(0, data[:totalLen-2])
	actualCRC := binary.LittleEndian.Uint16(data[totalLen-2:totalLen])
	if expectedCRC != actualCRC {
		return Packet{}, 0, fmt.Errorf("crc mismatch: expected 0x%04X, got 0x%04X", expectedCRC, actualCRC)
	}

	inst := data[7]
	if inst != InstStatus {
		return Packet{}, 0, fmt.Errorf("unexpected instruction 0x%02X in response", inst)
	}

	pkt := Packet{
		ID:          id,
		Instruction: inst,
		Error:       StatusError(data[8]),
		Parameters:  destuff(data[9 : totalLen-2]),
	}

	return pkt, headerIdx + totalLen, nil
}

// ExpectedResponseLength returns the wire length of a status packet
// carrying dataLen parameter bytes, assuming no stuffing.
func (p *Protocol) ExpectedResponseLength(dataLen int) int {
	return prefixLen + statusOverhead + dataLen
}

// Instruction packet builders

// PingPacket creates a ping instruction packet.
func (p *Protocol) PingPacket(id byte) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstPing,
	})
}

// ReadPacket creates a read instruction packet for length bytes at
// the given register address.
func (p *Protocol) ReadPacket(id byte, address, length uint16) []byte {
	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:2], address)
	binary.LittleEndian.PutUint16(params[2:4], length)

	return p.Encode(Packet{
		ID:          id,
		Instruction: InstRead,
		Parameters:  params,
	})
}

// WritePacket creates a write instruction packet.
func (p *Protocol) WritePacket(id byte, address uint16, data []byte) []byte {
	params := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(params[0:2], address)
	copy(params[2:], data)

	return p.Encode(Packet{
		ID:          id,
		Instruction: InstWrite,
		Parameters:  params,
	})
}

// DecodeValue converts 1, 2 or 4 little-endian bytes to an unsigned
// register value.
func (p *Protocol) DecodeValue(data []byte) uint32 {
	switch len(data) {
	case 1:
		return uint32(data[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(data))
	case 4:
		return binary.LittleEndian.Uint32(data)
	default:
		return 0
	}
}

// EncodeValue converts an unsigned register value to size little-endian
// bytes.
func (p *Protocol) EncodeValue(value uint32, size int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	if size != 1 && size != 2 && size != 4 {
		size = 4
	}
	return buf[:size]
}

func findHeader(data []byte) int {
	for i := 0; i+len(header) <= len(data); i++ {
		if data[i] == header[0] && data[i+1] == header[1] && data[i+2] == header[2] && data[i+3] == header[3] {
			return i
		}
	}
	return -1
}

// stuff inserts an extra 0xFD after any 0xFF 0xFF 0xFD run so the
// payload can never alias the packet header.
func stuff(body []byte) []byte {
	out := make([]byte, 0, len(body))
	run := 0
	for _, b := range body {
		out = append(out, b)
		switch {
		case run >= 2 && b == 0xFD:
			out = append(out, 0xFD)
			run = 0
		case b == 0xFF:
			run++
		default:
			run = 0
		}
	}
	return out
}

// destuff reverses stuff: drops the byte following each 0xFF 0xFF 0xFD
// sequence.
func destuff(body []byte) []byte {
	out := make([]byte, 0, len(body))
	run := 0
	skip := false
	for _, b := range body {
		if skip {
			skip = false
			run = 0
			continue
		}
		out = append(out, b)
		switch {
		case run >= 2 && b == 0xFD:
			skip = true
		case b == 0xFF:
			run++
		default:
			run = 0
		}
	}
	return out
}

// updateCRC implements the CRC-16 used by Protocol 2.0 (polynomial
// 0x8005, initial value 0, MSB first).
func updateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
