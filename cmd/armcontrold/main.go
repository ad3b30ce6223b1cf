package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "armcontrold",
		Short: "arm_control daemon",
		Long:  "Mediates the vendor robot SDK: ingress pipeline, SDK session, and operation dispatch.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(selftestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
