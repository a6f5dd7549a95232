package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molpadia/molparelay/internal/config"
	"github.com/molpadia/molparelay/internal/signature"
)

func newSignCmd(opts *rootOptions) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the signature of a set of upload parameters",
		Long: `Print the canonical string and the signature computed for the given
parameters with the configured API_SECRET. Use it to check a signature
refused by the remote service.`,
		Example: "  molparelay sign --param public_id=video-123 --param timestamp=1700000000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := parseParams(params)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			sig, err := signature.Sign(set, cfg.Cloud.APISecret)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "canonical: %s\n", signature.Canonical(set))
			fmt.Fprintf(out, "signature: %s\n", sig)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter as key=value, repeatable")
	return cmd
}

// parseParams reads key=value pairs. Values in canonical decimal form are
// treated as integers.
func parseParams(pairs []string) (signature.Params, error) {
	set := signature.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		if _, dup := set[key]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", key)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && strconv.FormatInt(n, 10) == value {
			set[key] = signature.Int(n)
		} else {
			set[key] = signature.String(value)
		}
	}
	return set, nil
}
