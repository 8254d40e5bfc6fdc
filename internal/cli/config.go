package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskhub/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage taskhub configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			force, _ := cmd.Flags().GetBool("force")
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration",
		RunE:  runConfigShow,
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = "********"
	}
	if cfg.Store.RedisPassword != "" {
		cfg.Store.RedisPassword = "********"
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# Merged configuration (defaults + file + environment)")
	fmt.Fprint(out, string(data))
	return nil
}
