package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "btserviced",
		Short: "bt_service daemon",
		Long:  "Runs the behavior-tree orchestrator: tree hot-reload, tick loop, and status correlation against arm_control.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
