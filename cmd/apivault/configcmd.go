package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"apivault/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	var (
		initFile bool
		show     bool
		path     string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if initFile {
				if path == "" {
					path = "apivault.toml"
				}
				if err := config.WriteDefault(path); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", green("Created"), path)
				fmt.Fprintln(out, "Edit this file to customize settings.")
				return nil
			}

			if show {
				data, err := json.MarshalIndent(a.cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintln(out, "Use --init to create a config file or --show to view the effective config.")
			fmt.Fprintln(out, "Config is searched in:")
			fmt.Fprintln(out, "  ./apivault.toml")
			fmt.Fprintln(out, "  ~/.apivault/config.toml")
			return nil
		},
	}

	cmd.Flags().BoolVar(&initFile, "init", false, "create a default config file")
	cmd.Flags().BoolVar(&show, "show", false, "print the effective configuration")
	cmd.Flags().StringVar(&path, "path", "", "target path for --init (default: ./apivault.toml)")
	return cmd
}
