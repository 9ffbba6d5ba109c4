// Package main is the process entrypoint: CLI flags, config, logging and
// the metrics endpoint. It does not construct the backend controller.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "povbackend",
	Short:   "povbackend - headless ray-tracer render backend",
	Long:    "povbackend is the headless control-plane process of the render backend. Its serve command loads configuration, starts logging and the metrics endpoint, and waits for a shutdown signal.",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional; env vars and defaults apply otherwise)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
