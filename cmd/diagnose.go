/*
Copyright © 2025 dxldiag contributors
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dxltools/dxldiag/diag"
	"github.com/dxltools/dxldiag/dxl"
)

// diagnoseCmd represents the diagnose command
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run the full connection diagnostic sequence",
	Long: `Run the full connection diagnostic sequence:

1. Locate an FTDI serial port (or use --port)
2. Check permissions, whether another process holds the port, and the
   USB latency timer setting
3. Open the port and negotiate the baud rate
4. Scan motor IDs 1..max-id with one ping each
5. Dump diagnostic registers from the motors that respond (at most 5)

The run exits 0 when the sequence completes, regardless of how many
motors were found, and 1 on any fatal precondition failure.

Examples:
  dxldiag diagnose
  dxldiag diagnose --port /dev/ttyUSB0 --baudrate 1000000
  dxldiag diagnose --max-id 30 --scan-ids=false`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := diag.Options{
			Port:     viper.GetString("port"),
			BaudRate: viper.GetInt("baudrate"),
			ScanIDs:  viper.GetBool("scan-ids"),
			MaxID:    viper.GetInt("max-id"),
		}

		opener := diag.OpenerFunc(func(port string) (diag.MotorBus, error) {
			bus, err := dxl.Open(dxl.Config{Port: port})
			if err != nil {
				return nil, err
			}
			return bus, nil
		})

		runner := diag.NewRunner(opts, opener, os.Stdin, os.Stdout)
		if err := runner.Run(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "\nDiagnostic aborted: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseCmd.Flags().StringP("port", "p", "", "Port to test (default: auto-detect FTDI ports)")
	diagnoseCmd.Flags().IntP("baudrate", "b", 57600, "Baudrate to test (common values: 57600, 1000000, 115200)")
	diagnoseCmd.Flags().Bool("scan-ids", true, "Scan for motor IDs on the bus")
	diagnoseCmd.Flags().Int("max-id", 20, "Maximum motor ID to scan for")

	viper.BindPFlag("port", diagnoseCmd.Flags().Lookup("port"))
	viper.BindPFlag("baudrate", diagnoseCmd.Flags().Lookup("baudrate"))
	viper.BindPFlag("scan-ids", diagnoseCmd.Flags().Lookup("scan-ids"))
	viper.BindPFlag("max-id", diagnoseCmd.Flags().Lookup("max-id"))
}
