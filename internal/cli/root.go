// Package cli implements the ltitool command line.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quipper/poc/lti/tool/internal/config"
	"github.com/quipper/poc/lti/tool/pkg/common/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	v          *viper.Viper
}

// load resolves the effective configuration and initializes logging.
func (o *RootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.v, o.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRootCommand creates the root command of the tool.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: config.New()}

	cmd := &cobra.Command{
		Use:           "ltitool",
		Short:         "LTI 1.3 tool for content libraries",
		Long:          "Serves LTI 1.3 resource link launches into content libraries and manages platform registrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("db", "", "SQLite database path (overrides database.path)")
	_ = opts.v.BindPFlag("database.path", cmd.PersistentFlags().Lookup("db"))

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPlatformCommand(opts))
	cmd.AddCommand(NewLibraryCommand(opts))

	return cmd
}
