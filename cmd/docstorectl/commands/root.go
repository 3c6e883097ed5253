// Package commands implements the docstorectl CLI subcommands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
	storeRoot string
)

var rootCmd = &cobra.Command{
	Use:   "docstorectl",
	Short: "docstorectl - operator CLI for a docstore record store",
	Long: `docstorectl drives the maintenance operations of a docstore record
store directly against its on-disk state: verifying index/shard consistency,
running an on-demand compaction pass, and recovering from an unclean
shutdown.

Use "docstorectl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/docstore/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeRoot, "root", "", "store root directory (overrides config store.root)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(recoverCmd)
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}

// GetStoreRoot returns the --root flag value.
func GetStoreRoot() string {
	return storeRoot
}
