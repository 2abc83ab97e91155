package diag

import (
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// FTDI adapters get stable symlinks here, named after the converter
// chip. This is the pattern the supported motor control boards show up
// under.
var ftdiGlobPattern = "/dev/serial/by-id/usb-FTDI_USB__-__Serial_Converter_*"

// FTDI's USB vendor ID.
const ftdiVendorID = "0403"

// FindFTDIPorts returns the by-id paths of all connected FTDI
// USB-serial converters, sorted. Zero matches is not an error; the
// caller decides what an empty bus means.
func FindFTDIPorts() []string {
	matches, err := filepath.Glob(ftdiGlobPattern)
	if err != nil {
		// Only possible with a malformed pattern.
		return nil
	}
	sort.Strings(matches)
	return matches
}

// PortInfo describes one candidate serial port.
type PortInfo struct {
	Path         string
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListCandidatePorts enumerates serial ports and keeps those backed by
// an FTDI chip, with USB metadata where available. Falls back to the
// by-id glob when enumeration is unavailable.
func ListCandidatePorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		var infos []PortInfo
		for _, path := range FindFTDIPorts() {
			infos = append(infos, PortInfo{Path: path})
		}
		return infos, nil
	}

	var infos []PortInfo
	for _, port := range ports {
		if !port.IsUSB || !strings.EqualFold(port.VID, ftdiVendorID) {
			continue
		}
		infos = append(infos, PortInfo{
			Path:         port.Name,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
			Product:      port.Product,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}
