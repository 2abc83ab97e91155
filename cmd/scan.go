/*
Copyright © 2025 dxldiag contributors
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dxltools/dxldiag/dxl"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <port>",
	Short: "Scan a bus for responding motor IDs",
	Long: `Scan the bus behind the given port for motors, pinging each ID from
1 up to --max-id in order.

Examples:
  dxldiag scan /dev/ttyUSB0
  dxldiag scan /dev/ttyUSB0 --baudrate 1000000 --max-id 30`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]
		baudRate, _ := cmd.Flags().GetInt("baudrate")
		maxID, _ := cmd.Flags().GetInt("max-id")

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

		fmt.Printf("Scanning %s for motors (IDs 1-%d) at %d baud...\n", portPath, maxID, baudRate)

		found, err := bus.Scan(cmd.Context(), 1, maxID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning: %v\n", err)
			os.Exit(1)
		}

		if len(found) == 0 {
			fmt.Println("No motors found")
			return
		}

		for _, servo := range found {
			fmt.Printf("  ID %d: model %d, firmware v%d\n", servo.ID, servo.ModelNumber, servo.Firmware)
		}
		fmt.Printf("Found %d motor(s)\n", len(found))
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().IntP("baudrate", "b", 57600, "Baudrate to use")
	scanCmd.Flags().Int("max-id", 20, "Maximum motor ID to scan for")
}
