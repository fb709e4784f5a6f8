package cli

import (
	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by every command.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "salience",
	Short: "Attention allocation for atom graphs",
	Long:  "Salience distributes a bounded attention budget over a graph of atoms using softmax, ECAN or hybrid allocation. Single Go binary, SQLite storage.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $SALIENCE_CONFIG or ~/.salience/config.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(flowsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(atomsCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(statusCmd)
}
