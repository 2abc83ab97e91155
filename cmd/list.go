/*
Copyright © 2025 dxldiag contributors
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dxltools/dxldiag/diag"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidate FTDI serial ports",
	Long: `List serial ports backed by an FTDI USB-serial converter, the
adapter family used by supported motor control boards.

Ports are found via USB enumeration (vendor ID 0403) with the
/dev/serial/by-id symlinks as a fallback. Other serial devices are
excluded.`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := diag.ListCandidatePorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		if len(ports) == 0 {
			fmt.Println("No FTDI ports found")
			return
		}

		tableFormat, _ := cmd.Flags().GetBool("table")
		if tableFormat {
			renderPortTable(ports)
		} else {
			for _, port := range ports {
				fmt.Println(port.Path)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// renderPortTable renders the port list in a styled static table format
func renderPortTable(ports []diag.PortInfo) {
	fmt.Printf("Found %d FTDI port(s):\n\n", len(ports))

	pathWidth := 40
	idWidth := 12
	serialWidth := 14
	productWidth := 24

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s",
		pathWidth, "Port",
		idWidth, "VID:PID",
		serialWidth, "Serial",
		productWidth, "Product")
	fmt.Println(headerStyle.Render(header))

	for _, port := range ports {
		usbID := ""
		if port.VID != "" {
			usbID = port.VID + ":" + port.PID
		}
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s",
			pathWidth, port.Path,
			idWidth, usbID,
			serialWidth, port.SerialNumber,
			productWidth, port.Product)
		fmt.Println(cellStyle.Render(row))
	}
}
