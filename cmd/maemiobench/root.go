// Package main implements maemiobench: N workers hammering a
// configurable number of records with a random read/write mix, reporting
// commit throughput and abort rate so the contention manager's hill
// climbing has something real to adapt to.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "maemiobench",
	Short: "benchmark harness for the maemio transactional key-value engine",
	Long: fmt.Sprintf(`maemiobench (v%s)

Drives a configurable number of worker goroutines against a maemio
Engine with a randomized read/write workload, and reports commit
throughput and abort rate.`, version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the maemiobench version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("maemiobench v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
