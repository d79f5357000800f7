// Package cmd contains the CLI commands for flocksync.
package cmd

import (
	"fmt"

	"github.com/brianly1003/flocksync/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version info (set from main)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"

	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "flocksync",
	Short: "Offline-first sync core for flock and egg records",
	Long: `flocksync keeps a local view of flocks, chickens and eggs in step with a
realtime tree store.

Run "flocksync serve" to host a tree, then "flocksync sync" to drive the sync
core against it with JSON commands on stdin and results on stdout.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information from the main package.
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./flocksync.yaml or ~/.flocksync/flocksync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd displays version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "flocksync %s\n", version)
		fmt.Fprintf(out, "  Build time: %s\n", buildTime)
		fmt.Fprintf(out, "  Git commit: %s\n", gitCommit)
	},
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}
