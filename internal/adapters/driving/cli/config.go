package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change settings",
	Long: `Settings are read from ~/.annotext/config.toml. Each key can be
overridden by an environment variable, shown next to it by "config show".`,
	Annotations: map[string]string{bootstrapAnnotation: needSettings},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective settings",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{bootstrapAnnotation: needSettings},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Change a setting in the config file",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{bootstrapAnnotation: needSettings},
	RunE:        runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	if jsonOutput {
		values := make(map[string]string)
		for _, key := range settingsService.Keys() {
			values[key], _ = services.Value(settings, key)
		}
		return printJSON(cmd, values)
	}

	for _, key := range settingsService.Keys() {
		v, _ := services.Value(settings, key)
		cmd.Printf("  %-28s = %-24s (%s)\n", key, v, services.EnvName(key))
	}
	cmd.Println()
	if err := settingsService.Validate(settings); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s\n", args[0])
	return nil
}
