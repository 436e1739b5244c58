package main

import (
	"fmt"

	"github.com/spf13/cobra"
	edad "github.com/srg/edad"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration edad would run with, after defaults are applied
and the --config file (if any) is merged in. With --example a commented
configuration file covering every option is printed instead.`,
	RunE: runConfig,
}

var configExample bool

func init() {
	configCmd.Flags().BoolVar(&configExample, "example", false, "Print a commented example configuration")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	if configExample {
		_, err := fmt.Fprint(cmd.OutOrStdout(), edad.ExampleConfig)
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
