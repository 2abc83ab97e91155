package dxl

// Register describes one control table entry.
type Register struct {
	Name    string
	Address uint16
	Size    int // 1, 2 or 4 bytes
}

// X-series control table entries used by the diagnostic commands.
var (
	RegModelNumber        = Register{"Model Number", 0, 2}
	RegFirmwareVersion    = Register{"Firmware Version", 6, 1}
	RegBaudRate           = Register{"Baud Rate", 8, 1}
	RegOperatingMode      = Register{"Operating Mode", 11, 1}
	RegTorqueEnable       = Register{"Torque Enable", 64, 1}
	RegPresentPosition    = Register{"Present Position", 132, 4}
	RegPresentVoltage     = Register{"Present Input Voltage", 144, 2}
	RegPresentTemperature = Register{"Present Temperature", 146, 1}
)

// DiagnosticRegisters returns the fixed register set read for each
// discovered motor, in read order.
func DiagnosticRegisters() []Register {
	return []Register{
		RegModelNumber,
		RegFirmwareVersion,
		RegBaudRate,
		RegOperatingMode,
		RegTorqueEnable,
		RegPresentPosition,
		RegPresentTemperature,
	}
}

// Encoder geometry for the X-series position register.
const (
	positionMidpoint    = 2048
	countsPerRevolution = 4096
)

// PositionDegrees converts a raw Present Position reading to degrees
// relative to the encoder midpoint. Display helper only; raw counts
// are what go over the wire.
func PositionDegrees(raw uint32) float64 {
	return (float64(raw) - positionMidpoint) * 360.0 / countsPerRevolution
}

// VoltageVolts converts a raw Present Input Voltage reading (0.1 V
// units) to volts.
func VoltageVolts(raw uint32) float64 {
	return float64(raw) / 10.0
}
