package diag

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dxltools/dxldiag/dxl"
)

// More responders than this and the per-motor register dump is skipped
// entirely; a bus that full is better inspected one ID at a time.
const maxDetailReads = 5

// scanGap is the fixed delay between ping transactions. Rate limiting
// only; the bus itself serializes transactions.
const defaultScanGap = 10 * time.Millisecond

// Runner executes the diagnostic sequence. The zero value is not
// usable; construct with NewRunner.
type Runner struct {
	opts   Options
	in     *bufio.Reader
	report report
	opener BusOpener

	// Injection points for tests.
	findPorts    func() []string
	checkPerm    func(port string) error
	checkInUse   func(ctx context.Context, port string) (InUseStatus, []string)
	checkLatency func(port string) (LatencyResult, error)
	scanGap      time.Duration
}

// NewRunner creates a runner reading prompts from in and writing the
// diagnostic report to out.
func NewRunner(opts Options, opener BusOpener, in io.Reader, out io.Writer) *Runner {
	if opts.BaudRate == 0 {
		opts.BaudRate = 57600
	}
	if opts.MaxID == 0 {
		opts.MaxID = 20
	}

	return &Runner{
		opts:         opts,
		in:           bufio.NewReader(in),
		report:       report{out: out},
		opener:       opener,
		findPorts:    FindFTDIPorts,
		checkPerm:    CheckPermissions,
		checkInUse:   CheckInUse,
		checkLatency: CheckLatencyTimer,
		scanGap:      defaultScanGap,
	}
}

// Run executes the full sequence. A nil return means the diagnostic
// completed, regardless of how many motors were found; an error is a
// fatal precondition failure.
func (r *Runner) Run(ctx context.Context) error {
	r.report.rule()
	r.report.info("Dynamixel Connection Diagnostic Tool")
	r.report.rule()

	port, err := r.selectPort()
	if err != nil {
		return err
	}

	if err := r.checkPort(ctx, port); err != nil {
		return err
	}

	r.report.info("\n[3] Testing port connection...")
	r.report.info("  Port: %s", port)
	r.report.info("  Baudrate: %d", r.opts.BaudRate)

	bus, err := r.opener.Open(port)
	if err != nil {
		r.report.fail("Failed to open port: %v", err)
		return fmt.Errorf("failed to open port %s: %w", port, err)
	}
	defer bus.Close()
	r.report.pass("Successfully opened port")

	if err := bus.SetBaudRate(r.opts.BaudRate); err != nil {
		r.report.fail("Failed to set baudrate to %d: %v", r.opts.BaudRate, err)
		return fmt.Errorf("failed to set baudrate %d: %w", r.opts.BaudRate, err)
	}
	r.report.pass("Successfully set baudrate to %d", r.opts.BaudRate)

	if r.opts.ScanIDs {
		found := r.scan(ctx, bus)

		if n := len(found); n > 0 && n <= maxDetailReads {
			for _, id := range found {
				r.readMotorInfo(ctx, bus, id)
			}
		}
	}

	r.report.info("")
	r.report.rule()
	r.report.info("Diagnostic complete!")
	r.report.rule()

	return nil
}

// selectPort resolves the port to test: the configured one, the single
// discovered one, or an interactive choice between several.
func (r *Runner) selectPort() (string, error) {
	if r.opts.Port != "" {
		r.report.info("\n[1] Using specified port: %s", r.opts.Port)
		return r.opts.Port, nil
	}

	r.report.info("\n[1] Detecting FTDI ports...")
	ports := r.findPorts()

	switch len(ports) {
	case 0:
		r.report.fail("No FTDI ports found")
		r.report.info("  Make sure your device is connected via USB")
		return "", ErrNoPortsFound
	case 1:
		r.report.pass("Found FTDI port: %s", ports[0])
		return ports[0], nil
	}

	r.report.pass("Found %d FTDI ports:", len(ports))
	for i, p := range ports {
		r.report.info("  %d: %s", i+1, p)
	}

	choice, err := r.promptLine("\nSelect port number: ")
	if err != nil {
		return "", ErrInvalidSelection
	}
	idx, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || idx < 1 || idx > len(ports) {
		r.report.info("Invalid choice")
		return "", ErrInvalidSelection
	}

	return ports[idx-1], nil
}

// checkPort runs the OS-level access and usage diagnostics. Only the
// permission check (and a declined in-use confirmation) is fatal.
func (r *Runner) checkPort(ctx context.Context, port string) error {
	r.report.info("\n[2] Checking port status...")

	if err := r.checkPerm(port); err != nil {
		r.report.fail("Port %s check failed: %v", port, err)
		r.report.info("  Try: sudo chmod 666 %s", port)
		return err
	}
	r.report.pass("Port %s has read/write permissions", port)

	status, holders := r.checkInUse(ctx, port)
	switch status {
	case InUseYes:
		r.report.fail("Port %s is in use by:", port)
		for _, line := range holders {
			r.report.info("    %s", line)
		}
		r.report.warn("Port is in use. Close other programs using this port.")
		answer, err := r.promptLine("Continue anyway? (y/n): ")
		if err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
			return ErrAborted
		}
	case InUseNo:
		r.report.pass("Port %s is not in use by other processes", port)
	default:
		r.report.warn("Could not check if port is in use (lsof not available or timeout)")
	}

	latency, err := r.checkLatency(port)
	switch {
	case err != nil:
		r.report.warn("Could not check latency timer: %v", err)
	case latency.Optimal():
		r.report.pass("Latency timer is optimal (1 ms)")
	default:
		r.report.warn("Latency timer is %d ms (recommended: 1 ms)", latency.Millis)
		r.report.info("  To fix: echo 1 | sudo tee %s", latency.Path)
	}

	return nil
}

// scan pings IDs 1 through MaxID in order, one blocking transaction
// each with a fixed gap in between. Non-responders are excluded; the
// result is ascending by construction.
func (r *Runner) scan(ctx context.Context, bus MotorBus) []int {
	r.report.info("\n[4] Scanning for motors (IDs 1-%d)...", r.opts.MaxID)
	r.report.info("This may take a moment...")

	var found []int
	for id := 1; id <= r.opts.MaxID; id++ {
		select {
		case <-ctx.Done():
			return found
		default:
		}

		info, err := bus.Ping(ctx, id)
		if err == nil {
			r.report.pass("  Found motor at ID %d (Model: %d)", id, info.ModelNumber)
			found = append(found, id)
		}

		time.Sleep(r.scanGap)
	}

	if len(found) == 0 {
		r.report.fail("  No motors found")
		r.report.info("\nPossible reasons:")
		r.report.info("  1. Motors are not powered")
		r.report.info("  2. Wrong baudrate (try --baudrate 1000000 or --baudrate 115200)")
		r.report.info("  3. Motor IDs are outside the scanned range (use --max-id to increase)")
		r.report.info("  4. Cable connection issues")
		r.report.info("  5. Motors are configured for Protocol 1.0 (this tool uses Protocol 2.0)")
	} else {
		r.report.info("")
		r.report.pass("Found %d motor(s): %v", len(found), found)
	}

	return found
}

// readMotorInfo dumps the fixed diagnostic register set for one motor.
// Each read is independent; a failure is advisory and does not stop
// the remaining reads.
func (r *Runner) readMotorInfo(ctx context.Context, bus MotorBus, id int) {
	r.report.info("\nReading information from motor ID %d...", id)

	for _, reg := range dxl.DiagnosticRegisters() {
		value, err := bus.ReadRegister(ctx, id, reg)
		if err != nil {
			r.report.info("  %s: Failed to read (%v)", reg.Name, err)
			continue
		}

		if reg.Address == dxl.RegPresentPosition.Address {
			r.report.info("  %s: %d (≈ %.1f°)", reg.Name, value, dxl.PositionDegrees(value))
		} else {
			r.report.info("  %s: %d", reg.Name, value)
		}
	}
}

func (r *Runner) promptLine(prompt string) (string, error) {
	fmt.Fprint(r.report.out, prompt)
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
