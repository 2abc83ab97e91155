/*
Copyright © 2025 dxldiag contributors
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dxltools/dxldiag/dxl"
)

var monitorInterval time.Duration

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port> <id>",
	Short: "Live-monitor a motor's feedback registers",
	Long: `Poll a motor's feedback registers (present position, temperature,
input voltage, torque state) at a fixed interval and display them in a
live view. Press q or Ctrl+C to stop.

Examples:
  dxldiag monitor /dev/ttyUSB0 1
  dxldiag monitor /dev/ttyUSB0 1 --interval 100ms --baudrate 1000000`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]
		id, err := strconv.Atoi(args[1])
		if err != nil || id < 0 || id > dxl.MaxServoID {
			fmt.Fprintf(os.Stderr, "Invalid motor ID %q (valid range: 0-%d)\n", args[1], dxl.MaxServoID)
			os.Exit(1)
		}
		baudRate, _ := cmd.Flags().GetInt("baudrate")

		bus, err := dxl.Open(dxl.Config{Port: portPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening port: %v\n", err)
			os.Exit(1)
		}
		defer bus.Close()

		if err := bus.SetBaudRate(baudRate); err != nil {
			fmt.Fprintf(os.Stderr, "Error setting baudrate: %v\n", err)
			os.Exit(1)
		}

		model := newMonitorModel(bus, id, portPath, monitorInterval)
		if _, err := tea.NewProgram(model).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running monitor: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().IntP("baudrate", "b", 57600, "Baudrate to use")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 250*time.Millisecond, "Polling interval")
}

// monitorKeyMap defines the key bindings for the monitor view
type monitorKeyMap struct {
	Quit key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}

var monitorKeys = monitorKeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// readings holds one polled snapshot. A nil Err with a zero value is a
// valid reading; Err marks the whole snapshot as failed.
type readings struct {
	Position    uint32
	Temperature uint32
	Voltage     uint32
	Torque      uint32
	Err         error
}

type tickMsg time.Time
type readingsMsg readings

// monitorModel is the Bubble Tea model for the monitor command
type monitorModel struct {
	bus      *dxl.Bus
	id       int
	port     string
	interval time.Duration

	last    readings
	samples int
	help    help.Model
	keys    monitorKeyMap
}

func newMonitorModel(bus *dxl.Bus, id int, port string, interval time.Duration) monitorModel {
	return monitorModel{
		bus:      bus,
		id:       id,
		port:     port,
		interval: interval,
		help:     help.New(),
		keys:     monitorKeys,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.poll()
}

// poll reads the feedback registers in one blocking command. The bus
// serializes transactions, so this never races with itself.
func (m monitorModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var r readings

		regs := []struct {
			reg  dxl.Register
			dest *uint32
		}{
			{dxl.RegPresentPosition, &r.Position},
			{dxl.RegPresentTemperature, &r.Temperature},
			{dxl.RegPresentVoltage, &r.Voltage},
			{dxl.RegTorqueEnable, &r.Torque},
		}

		for _, entry := range regs {
			value, err := m.bus.ReadRegister(ctx, m.id, entry.reg)
			if err != nil {
				r.Err = err
				break
			}
			*entry.dest = value
		}

		return readingsMsg(r)
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

	case readingsMsg:
		m.last = readings(msg)
		m.samples++
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})

	case tickMsg:
		return m, m.poll()
	}

	return m, nil
}

var (
	monitorTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("99"))

	monitorLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Width(14)

	monitorErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

func (m monitorModel) View() string {
	title := monitorTitleStyle.Render(fmt.Sprintf("Motor %d on %s", m.id, m.port))

	var body string
	if m.samples == 0 {
		body = "Waiting for first reading..."
	} else if m.last.Err != nil {
		body = monitorErrStyle.Render(fmt.Sprintf("Read failed: %v", m.last.Err))
	} else {
		torque := "off"
		if m.last.Torque != 0 {
			torque = "on"
		}
		body = fmt.Sprintf("%s %d (≈ %.1f°)\n%s %d °C\n%s %.1f V\n%s %s",
			monitorLabelStyle.Render("Position"), m.last.Position, dxl.PositionDegrees(m.last.Position),
			monitorLabelStyle.Render("Temperature"), m.last.Temperature,
			monitorLabelStyle.Render("Voltage"), dxl.VoltageVolts(m.last.Voltage),
			monitorLabelStyle.Render("Torque"), torque,
		)
	}

	return fmt.Sprintf("%s\n\n%s\n\nsamples: %d\n%s\n",
		title, body, m.samples, m.help.View(m.keys))
}
