package commands

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/hydrostat/conusflow/config"
	"github.com/hydrostat/conusflow/errors"
)

// ConfigCmd groups configuration subcommands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// ConfigShowCmd prints the effective configuration
var ConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Long: `Print the configuration the other commands would run with,
after defaults, the discovered or named config file, and CONUSFLOW_*
environment variables are merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		out, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to render config")
		}
		fmt.Print(string(out))
		return nil
	},
}

// ConfigInitCmd writes a config file to edit
var ConfigInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the current configuration to a file",
	Long: `Write the effective configuration to the given path (default
conusflow.toml in the working directory). Existing files are rotated
into .back1/.back2/.back3 copies before being replaced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "conusflow.toml"
		if len(args) == 1 {
			path = args[0]
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if err := config.Persist(cfg, path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(ConfigShowCmd)
	ConfigCmd.AddCommand(ConfigInitCmd)
}
