package diag

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// sysfs root for USB serial driver attributes. Variable so tests can
// point it at a mock tree.
var usbSerialSysfsRoot = "/sys/bus/usb-serial/devices"

// lsofTimeout bounds the external process-listing call.
const lsofTimeout = 2 * time.Second

// CheckPermissions verifies the port exists and is readable and
// writable by the current user. A failure here is fatal: nothing else
// can work without the device node.
func CheckPermissions(port string) error {
	if _, err := os.Stat(port); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPortNotFound, port)
		}
		return err
	}

	if err := unix.Access(port, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, port)
	}

	return nil
}

// InUseStatus is the outcome of the port-holder check.
type InUseStatus int

const (
	// InUseUnknown means the check could not run (lsof missing or
	// timed out). Treated as "unknown", never as "not in use".
	InUseUnknown InUseStatus = iota
	InUseNo
	InUseYes
)

// CheckInUse asks lsof whether another process holds the port open.
// Returns the holder lines from lsof when the port is in use.
func CheckInUse(ctx context.Context, port string) (InUseStatus, []string) {
	if _, err := exec.LookPath("lsof"); err != nil {
		return InUseUnknown, nil
	}

	ctx, cancel := context.WithTimeout(ctx, lsofTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "lsof", port).Output()
	if ctx.Err() != nil {
		return InUseUnknown, nil
	}
	if err != nil {
		// lsof exits non-zero when nothing holds the file.
		return InUseNo, nil
	}

	holders := parseLsofHolders(string(out))
	if len(holders) == 0 {
		return InUseNo, nil
	}
	return InUseYes, holders
}

// parseLsofHolders strips the lsof header row and returns the process
// lines.
func parseLsofHolders(output string) []string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return nil
	}
	return lines[1:]
}

// LatencyResult reports the FTDI latency timer setting.
type LatencyResult struct {
	Path   string // sysfs attribute path
	Millis int
}

// Optimal returns true when the latency timer is at the 1 ms minimum,
// the recommended setting for polled request/response protocols.
func (r LatencyResult) Optimal() bool {
	return r.Millis == 1
}

// CheckLatencyTimer resolves the port to its underlying tty device and
// reads the USB serial driver's latency timer attribute. Failure is
// advisory: the attribute simply is not present for every driver.
func CheckLatencyTimer(port string) (LatencyResult, error) {
	realPort, err := filepath.EvalSymlinks(port)
	if err != nil {
		return LatencyResult{}, fmt.Errorf("could not resolve port path: %w", err)
	}

	return latencyTimerAt(usbSerialSysfsRoot, filepath.Base(realPort))
}

func latencyTimerAt(sysRoot, ttyDevice string) (LatencyResult, error) {
	path := filepath.Join(sysRoot, ttyDevice, "latency_timer")

	raw := readSysfsFile(path)
	if raw == "" {
		return LatencyResult{}, fmt.Errorf("latency timer attribute not found at %s", path)
	}

	millis, err := strconv.Atoi(raw)
	if err != nil {
		return LatencyResult{}, fmt.Errorf("unexpected latency timer value %q", raw)
	}

	return LatencyResult{Path: path, Millis: millis}, nil
}

// readSysfsFile reads a single-value sysfs attribute, returning an
// empty string if unavailable.
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
