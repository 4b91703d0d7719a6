package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spritesync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show prints the configuration after defaults, the config file,
SPRITESYNC_* environment variables and command-line flags have been
applied, with every path resolved. The output is YAML, or JSON with --json.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(cfg)
		}

		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Example: `  spritesync config init
  spritesync config init ~/.config/spritesync/spritesync.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false,
		"Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "spritesync.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if err := config.WriteFile(config.DefaultConfig(), path, configInitForce); err != nil {
		return err
	}

	printInfo("Wrote %s", path)
	return nil
}
