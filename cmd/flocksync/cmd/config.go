package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brianly1003/flocksync/internal/config"
	"github.com/brianly1003/flocksync/internal/remote"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configInitLocal bool
	configInitForce bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage flocksync configuration.

Without subcommands, shows the current effective configuration with
passwords and secrets masked.

Examples:
  flocksync config              # Show current config
  flocksync config init         # Create config file with defaults
  flocksync config path         # Show config file location
  flocksync config get <key>    # Get a config value`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := config.Marshal(redacted(cfg))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings.

By default, creates ~/.flocksync/flocksync.yaml.
Use --local to create ./flocksync.yaml in the current directory.

Examples:
  flocksync config init          # Create ~/.flocksync/flocksync.yaml
  flocksync config init --local  # Create ./flocksync.yaml
  flocksync config init --force  # Overwrite existing file`,
	RunE: runConfigInit,
}

// configPathCmd shows config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := config.NewLoader(cfgFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if f := loader.File(); f != "" {
			fmt.Fprintf(out, "Config file: %s\n", f)
			return nil
		}
		fmt.Fprintln(out, "No config file found; using defaults and environment.")
		fmt.Fprintln(out, "Search paths:")
		fmt.Fprintf(out, "  ./%s.yaml\n", config.FileName)
		if dir, err := config.GetConfigDir(); err == nil {
			fmt.Fprintf(out, "  %s\n", filepath.Join(dir, config.FileName+".yaml"))
		}
		fmt.Fprintf(out, "  /etc/flocksync/%s.yaml\n", config.FileName)
		return nil
	},
}

// configGetCmd gets a config value.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by key.

Keys use dot notation to access nested values.

Examples:
  flocksync config get server.port
  flocksync config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := config.NewLoader(cfgFile)
		if err != nil {
			return err
		}
		value := loader.Get(args[0])
		if value == nil {
			return fmt.Errorf("unknown config key: %s", args[0])
		}
		data, err := yaml.Marshal(value)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var path string
	if configInitLocal {
		path = config.FileName + ".yaml"
	} else {
		dir, err := config.GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(dir, config.FileName+".yaml")
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	if err := config.WriteFile(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
	return nil
}

// redacted returns a copy of cfg that is safe to print.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	out.Remote.DSN = remote.Redact(cfg.Remote.DSN)
	out.Store.DSN = remote.Redact(cfg.Store.DSN)
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = "xxxxx"
	}
	return &out
}
