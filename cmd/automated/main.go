// automated runs the automation runtime as a daemon: it loads config,
// assembles the service graph and runs until interrupted. The hub
// transport feeding the bus is provided by the embedding deployment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openhaus/automate/config"
	"github.com/openhaus/automate/runtime"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "automated",
	Short:        "Event-driven automation runtime",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader("APP")
		if configPath != "" {
			if err := loader.LoadFile(configPath); err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}
		}

		var cfg runtime.Config
		if err := loader.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}

		rt, err := runtime.New(cfg)
		if err != nil {
			return fmt.Errorf("assemble runtime: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return rt.Run(ctx)
	},
}

func main() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
