package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gptassistant: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "gptassistant",
		Short:         "Chat with a hosted language model from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&opts.model, "model", "", "Model to request (overrides config and environment)")
	f.DurationVar(&opts.revealInterval, "reveal-interval", 0, "Delay between revealed characters (e.g. 20ms)")
	f.BoolVar(&opts.plain, "plain", false, "Use the line-oriented interface instead of the full-screen one")
	f.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	f.BoolVar(&opts.noAudit, "no-audit", false, "Do not record turns in the audit database")

	return cmd
}
