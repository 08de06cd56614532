package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/utpio/utp/pkg/config"
	"github.com/utpio/utp/pkg/log"
)

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "utp",
		Short:        "µTP demo client and server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML configuration file")
	cmd.AddCommand(serveCommand(&cfgFile), sendCommand(&cfgFile), generateCommand(&cfgFile))
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "utp: error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and returns a context that carries the
// configured logger.
func setup(cmd *cobra.Command, cfgFile string) (context.Context, *config.Config, error) {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	ctx, err = log.InitContext(ctx, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return ctx, cfg, nil
}
