/*
Copyright © 2025 dxldiag contributors
*/
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dxltools/dxldiag/dxl"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <port> <id>",
	Short: "Dump the diagnostic registers of one motor",
	Long: `Read the fixed diagnostic register set (model number, firmware,
baud rate, operating mode, torque enable, present position and
temperature) from a single motor.

Examples:
  dxldiag read /dev/ttyUSB0 1
  dxldiag read /dev/ttyUSB0 3 --baudrate 1000000`,
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

		fmt.Printf("Reading information from motor ID %d...\n", id)

		for _, reg := range dxl.DiagnosticRegisters() {
			value, err := bus.ReadRegister(cmd.Context(), id, reg)
			if err != nil {
				fmt.Printf("  %s: Failed to read (%v)\n", reg.Name, err)
				continue
			}

			if reg.Address == dxl.RegPresentPosition.Address {
				fmt.Printf("  %s: %d (≈ %.1f°)\n", reg.Name, value, dxl.PositionDegrees(value))
			} else {
				fmt.Printf("  %s: %d\n", reg.Name, value)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().IntP("baudrate", "b", 57600, "Baudrate to use")
}
