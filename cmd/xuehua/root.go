package main

import (
	"github.com/go-xlan/xuehua-go-id/internal/logging"
	"github.com/go-xlan/xuehua-go-id/xuehuaconf"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand
type rootOptions struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "xuehua",
		Short: "Snowflake-style 64-bit id generator",
		Long: `xuehua generates and inspects Snowflake-style ids.

Layout (high to low): [reserved][timestamp][worker id][sequence]
The default layout is 1/41/10/12. Worker ids are assigned by you;
with guard.enabled the worker id is leased in redis while ids are generated.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log lease events")

	rootCmd.AddCommand(newNextCmd(opts))
	rootCmd.AddCommand(newDecodeCmd(opts))
	rootCmd.AddCommand(newLayoutCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func (o *rootOptions) loadConfig() (*xuehuaconf.Config, error) {
	if o.cfgFile == "" {
		return xuehuaconf.Default(), nil
	}
	return xuehuaconf.LoadFile(o.cfgFile)
}

func (o *rootOptions) logger() logging.Logger {
	if o.verbose {
		return logging.NewDefaultLogger()
	}
	return logging.NewNopLogger()
}
