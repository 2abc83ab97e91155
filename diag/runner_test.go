package diag

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dxltools/dxldiag/dxl"
)

// fakeBus implements MotorBus and records every transaction.
type fakeBus struct {
	acked    map[int]bool
	regs     map[uint16]uint32
	regErr   error
	baudErr  error
	pings    []int
	reads    []int
	bauds    []int
	closes   int
	lastRegs []dxl.Register
}

func (f *fakeBus) SetBaudRate(baud int) error {
	if f.baudErr != nil {
		return f.baudErr
	}
	f.bauds = append(f.bauds, baud)
	return nil
}

func (f *fakeBus) Ping(ctx context.Context, id int) (dxl.PingInfo, error) {
	f.pings = append(f.pings, id)
	if f.acked[id] {
		return dxl.PingInfo{ModelNumber: 1030, Firmware: 38}, nil
	}
	return dxl.PingInfo{}, dxl.ErrNoResponse
}

func (f *fakeBus) ReadRegister(ctx context.Context, id int, reg dxl.Register) (uint32, error) {
	f.reads = append(f.reads, id)
	f.lastRegs = append(f.lastRegs, reg)
	if f.regErr != nil {
		return 0, f.regErr
	}
	return f.regs[reg.Address], nil
}

func (f *fakeBus) Close() error {
	f.closes++
	return nil
}

// fakeOpener implements BusOpener.
type fakeOpener struct {
	bus    *fakeBus
	err    error
	opened []string
}

func (f *fakeOpener) Open(port string) (MotorBus, error) {
	f.opened = append(f.opened, port)
	if f.err != nil {
		return nil, f.err
	}
	return f.bus, nil
}

// newTestRunner wires a runner with quiet checks and no scan delay.
func newTestRunner(opts Options, opener BusOpener, input string, out *bytes.Buffer) *Runner {
	r := NewRunner(opts, opener, strings.NewReader(input), out)
	r.scanGap = 0
	r.checkPerm = func(string) error { return nil }
	r.checkInUse = func(context.Context, string) (InUseStatus, []string) { return InUseNo, nil }
	r.checkLatency = func(string) (LatencyResult, error) { return LatencyResult{Millis: 1}, nil }
	return r
}

func TestRunNoPortsFound(t *testing.T) {
	opener := &fakeOpener{bus: &fakeBus{}}
	var out bytes.Buffer

	r := newTestRunner(DefaultOptions(), opener, "", &out)
	r.findPorts = func() []string { return nil }

	err := r.Run(context.Background())
	if !errors.Is(err, ErrNoPortsFound) {
		t.Fatalf("Run() err = %v, want ErrNoPortsFound", err)
	}
	if len(opener.opened) != 0 {
		t.Errorf("opener invoked %d times, want 0", len(opener.opened))
	}
}

func TestRunPermissionFailure(t *testing.T) {
	bus := &fakeBus{}
	opener := &fakeOpener{bus: bus}
	var out bytes.Buffer

	r := newTestRunner(DefaultOptions(), opener, "", &out)
	r.findPorts = func() []string { return []string{"/dev/ttyUSB0"} }
	r.checkPerm = func(string) error { return ErrPermissionDenied }

	err := r.Run(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Run() err = %v, want ErrPermissionDenied", err)
	}
	if len(opener.opened) != 0 {
		t.Error("connection was opened despite permission failure")
	}
	if len(bus.pings) != 0 {
		t.Error("scan was attempted despite permission failure")
	}
	if bus.closes != 0 {
		t.Errorf("bus closed %d times without being opened", bus.closes)
	}
}

func TestRunScanBounds(t *testing.T) {
	bus := &fakeBus{acked: map[int]bool{2: true, 4: true}}
	opener := &fakeOpener{bus: bus}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"
	opts.MaxID = 5

	r := newTestRunner(opts, opener, "", &out)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() err = %v", err)
	}

	want := []int{1, 2, 3, 4, 5}
	if len(bus.pings) != len(want) {
		t.Fatalf("pinged IDs %v, want %v", bus.pings, want)
	}
	for i, id := range want {
		if bus.pings[i] != id {
			t.Fatalf("pinged IDs %v, want %v", bus.pings, want)
		}
	}
	if bus.closes != 1 {
		t.Errorf("bus closed %d times, want 1", bus.closes)
	}
}

func TestRunScanResultsAscendingAndAckedOnly(t *testing.T) {
	bus := &fakeBus{acked: map[int]bool{7: true, 3: true, 12: true}}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"
	opts.MaxID = 15

	r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
	found := r.scan(context.Background(), bus)

	if len(found) != 3 {
		t.Fatalf("found = %v, want 3 IDs", found)
	}
	for i := 1; i < len(found); i++ {
		if found[i-1] >= found[i] {
			t.Errorf("scan result not ascending: %v", found)
		}
	}
	for _, id := range found {
		if !bus.acked[id] {
			t.Errorf("scan reported non-responding ID %d", id)
		}
	}
}

func TestRunDetailReadBoundary(t *testing.T) {
	tests := []struct {
		name       string
		responders int
		wantReads  bool
	}{
		{"five responders trigger reads", 5, true},
		{"six responders skip reads", 6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acked := map[int]bool{}
			for id := 1; id <= tt.responders; id++ {
				acked[id] = true
			}
			bus := &fakeBus{acked: acked, regs: map[uint16]uint32{132: 2048}}
			var out bytes.Buffer

			opts := DefaultOptions()
			opts.Port = "/dev/ttyUSB0"
			opts.MaxID = 10

			r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
			if err := r.Run(context.Background()); err != nil {
				t.Fatalf("Run() err = %v", err)
			}

			if tt.wantReads {
				// Seven registers per responder.
				if want := tt.responders * 7; len(bus.reads) != want {
					t.Errorf("register reads = %d, want %d", len(bus.reads), want)
				}
			} else if len(bus.reads) != 0 {
				t.Errorf("register reads = %d, want 0", len(bus.reads))
			}
		})
	}
}

func TestRunRegisterReadFailureIsAdvisory(t *testing.T) {
	bus := &fakeBus{acked: map[int]bool{1: true}, regErr: dxl.ErrNoResponse}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"
	opts.MaxID = 3

	r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() err = %v, register failures must not be fatal", err)
	}

	// Every register is still attempted.
	if len(bus.reads) != 7 {
		t.Errorf("register reads = %d, want 7", len(bus.reads))
	}
}

func TestRunOpenFailure(t *testing.T) {
	bus := &fakeBus{}
	opener := &fakeOpener{bus: bus, err: errors.New("device busy")}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"

	r := newTestRunner(opts, opener, "", &out)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded despite open failure")
	}
	if bus.closes != 0 {
		t.Errorf("bus closed %d times without a successful open", bus.closes)
	}
}

func TestRunBaudRateFailureClosesOnce(t *testing.T) {
	bus := &fakeBus{baudErr: errors.New("rate rejected")}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"

	r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded despite baud rate failure")
	}
	if bus.closes != 1 {
		t.Errorf("bus closed %d times, want exactly 1", bus.closes)
	}
	if len(bus.pings) != 0 {
		t.Error("scan ran despite baud rate failure")
	}
}

func TestRunScanDisabledStillCloses(t *testing.T) {
	bus := &fakeBus{}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"
	opts.ScanIDs = false

	r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() err = %v", err)
	}
	if len(bus.pings) != 0 {
		t.Errorf("scan pinged %v with scanning disabled", bus.pings)
	}
	if bus.closes != 1 {
		t.Errorf("bus closed %d times, want 1", bus.closes)
	}
}

func TestRunPortSelectionPrompt(t *testing.T) {
	ports := []string{"/dev/serial/by-id/conv-A", "/dev/serial/by-id/conv-B"}

	t.Run("valid selection", func(t *testing.T) {
		bus := &fakeBus{}
		opener := &fakeOpener{bus: bus}
		var out bytes.Buffer

		opts := DefaultOptions()
		opts.MaxID = 1

		r := newTestRunner(opts, opener, "2\n", &out)
		r.findPorts = func() []string { return ports }

		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() err = %v", err)
		}
		if len(opener.opened) != 1 || opener.opened[0] != ports[1] {
			t.Errorf("opened %v, want [%s]", opener.opened, ports[1])
		}
	})

	t.Run("invalid selection", func(t *testing.T) {
		opener := &fakeOpener{bus: &fakeBus{}}
		var out bytes.Buffer

		r := newTestRunner(DefaultOptions(), opener, "nope\n", &out)
		r.findPorts = func() []string { return ports }

		if err := r.Run(context.Background()); !errors.Is(err, ErrInvalidSelection) {
			t.Fatalf("Run() err = %v, want ErrInvalidSelection", err)
		}
		if len(opener.opened) != 0 {
			t.Error("port opened despite invalid selection")
		}
	})

	t.Run("out of range selection", func(t *testing.T) {
		opener := &fakeOpener{bus: &fakeBus{}}
		var out bytes.Buffer

		r := newTestRunner(DefaultOptions(), opener, "3\n", &out)
		r.findPorts = func() []string { return ports }

		if err := r.Run(context.Background()); !errors.Is(err, ErrInvalidSelection) {
			t.Fatalf("Run() err = %v, want ErrInvalidSelection", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		opener := &fakeOpener{bus: &fakeBus{}}
		var out bytes.Buffer

		r := newTestRunner(DefaultOptions(), opener, "", &out)
		r.findPorts = func() []string { return ports }

		if err := r.Run(context.Background()); !errors.Is(err, ErrInvalidSelection) {
			t.Fatalf("Run() err = %v, want ErrInvalidSelection", err)
		}
	})
}

func TestRunInUseConfirmation(t *testing.T) {
	holders := []string{"python3  1234  user  3u  CHR  188,0"}

	t.Run("decline aborts", func(t *testing.T) {
		opener := &fakeOpener{bus: &fakeBus{}}
		var out bytes.Buffer

		opts := DefaultOptions()
		opts.Port = "/dev/ttyUSB0"

		r := newTestRunner(opts, opener, "n\n", &out)
		r.checkInUse = func(context.Context, string) (InUseStatus, []string) { return InUseYes, holders }

		if err := r.Run(context.Background()); !errors.Is(err, ErrAborted) {
			t.Fatalf("Run() err = %v, want ErrAborted", err)
		}
		if len(opener.opened) != 0 {
			t.Error("port opened after declined confirmation")
		}
	})

	t.Run("accept continues", func(t *testing.T) {
		bus := &fakeBus{}
		var out bytes.Buffer

		opts := DefaultOptions()
		opts.Port = "/dev/ttyUSB0"
		opts.MaxID = 1

		r := newTestRunner(opts, &fakeOpener{bus: bus}, "y\n", &out)
		r.checkInUse = func(context.Context, string) (InUseStatus, []string) { return InUseYes, holders }

		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() err = %v", err)
		}
		if bus.closes != 1 {
			t.Errorf("bus closed %d times, want 1", bus.closes)
		}
	})

	t.Run("unknown is advisory", func(t *testing.T) {
		bus := &fakeBus{}
		var out bytes.Buffer

		opts := DefaultOptions()
		opts.Port = "/dev/ttyUSB0"
		opts.MaxID = 1

		r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
		r.checkInUse = func(context.Context, string) (InUseStatus, []string) { return InUseUnknown, nil }

		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run() err = %v, unknown in-use status must not be fatal", err)
		}
	})
}

func TestRunLatencyFailureIsAdvisory(t *testing.T) {
	bus := &fakeBus{}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"
	opts.MaxID = 1

	r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
	r.checkLatency = func(string) (LatencyResult, error) {
		return LatencyResult{}, errors.New("attribute missing")
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() err = %v, latency check must be advisory", err)
	}

	if !strings.Contains(out.String(), "Could not check latency timer") {
		t.Error("latency warning not reported")
	}
}

func TestRunPositionFormatting(t *testing.T) {
	bus := &fakeBus{
		acked: map[int]bool{1: true},
		regs:  map[uint16]uint32{132: 4096},
	}
	var out bytes.Buffer

	opts := DefaultOptions()
	opts.Port = "/dev/ttyUSB0"
	opts.MaxID = 1

	r := newTestRunner(opts, &fakeOpener{bus: bus}, "", &out)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() err = %v", err)
	}

	if !strings.Contains(out.String(), "4096 (≈ 180.0°)") {
		t.Errorf("position line missing degree conversion:\n%s", out.String())
	}
}
