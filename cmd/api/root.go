package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/molpadia/molparelay/internal/config"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "molparelay",
		Short: "Relay video uploads to the remote media service",
		Long: `molparelay accepts a video upload over HTTP, buffers it under a 10 MiB ceiling
and forwards it to the remote media API with a signed request.

Running it without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "file of environment variables read before the environment")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSignCmd(opts))
	cmd.AddCommand(newEnvCmd())
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the upload server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables read at startup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
			return err
		},
	}
}
