// Package cli holds the taskhub command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"taskhub/internal/config"
)

const defaultConfigPath = "taskhub.yaml"

// Execute runs the root command.
func Execute(version string) error {
	root := newRootCmd(version)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskhub",
		Short: "taskhub - task lifecycle and live view service",
		Long: `taskhub serves a multi-tenant task API with soft delete, restore and purge,
a cached read path and live filtered views streamed over server-sent events.

Running it without a subcommand starts the server.`,
		RunE:          func(cmd *cobra.Command, args []string) error { return runServe(cmd, version) },
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().String("config", defaultConfigPath, "Path to the YAML config file")
	addServeFlags(root.Flags())

	root.AddCommand(newServeCmd(version))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newVersionCmd(version))
	return root
}

// loadConfig reads the config named by --config and applies the command's
// flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}

func addServeFlags(fs *pflag.FlagSet) {
	d := config.DefaultConfig()
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.String("static", d.Server.StaticDir, "Directory with built frontend")
	fs.String("store", d.Store.Driver, "Task store driver (sqlite or redis)")
	fs.String("db", d.Store.SQLitePath, "Path to sqlite database file")
	fs.String("redis", d.Store.RedisAddr, "Redis address for the redis store")
	fs.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskhub %s\n", version)
		},
	}
}
