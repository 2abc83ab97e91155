/*
Copyright © 2025 dxldiag contributors
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dxldiag",
	Short: "Diagnose Dynamixel motor connections over FTDI USB-serial adapters",
	Long: `dxldiag diagnoses connectivity problems between this host and
Dynamixel servo motors connected through an FTDI USB-to-serial adapter,
speaking Dynamixel Protocol 2.0.

It can locate candidate ports, verify OS-level access, open the bus at a
configured baud rate, scan a range of motor IDs, and dump diagnostic
registers from the motors that respond.

Run 'dxldiag diagnose' for the full guided sequence, or use the
individual subcommands (list, scan, read, monitor) directly.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dxldiag.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dxldiag")
	}

	viper.SetEnvPrefix("DXLDIAG")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
