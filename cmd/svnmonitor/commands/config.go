// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"io/fs"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"github.com/bartekus/svnmonitor/cmd/svnmonitor/internal/clierr"
	"github.com/bartekus/svnmonitor/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and validate the configuration",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a), newConfigValidateCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration to --config",
		Long: `Writes a sample configuration with one placeholder repository. The file
extension of --config picks the format: .xlsx or .yaml. An existing file is
never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath()
			if err := config.WriteDefault(path); err != nil {
				if errors.Is(err, fs.ErrExist) {
					return clierr.Wrap(clierr.CodeUsage, "", err)
				}
				return err
			}
			writeLine(cmd.OutOrStdout(), "Wrote %s; edit the EMAIL section and the repositories before use.", path)
			return nil
		},
	}
}

func newConfigShowCmd(a *app) *cobra.Command {
	var (
		raw    bool
		reveal bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after defaults and path resolution, as YAML.
--raw dumps the loaded Go value instead. Passwords are masked unless
--reveal is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath())
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "loading configuration", err)
			}

			out := cmd.OutOrStdout()
			if raw {
				shown := cfg
				if !reveal {
					shown = cfg.Masked()
				}
				_, err := pretty.Fprintf(out, "%# v\n", shown)
				return err
			}
			data, err := config.Marshal(cfg, reveal)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "dump the loaded value instead of YAML")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "show passwords")
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "%s: OK (%d repositories)", cfg.Path, len(cfg.Repositories))
			for _, r := range cfg.Repositories {
				writeLine(cmd.OutOrStdout(), "  %s  %s  %s", r.ID, r.DisplayName(), r.Target())
			}
			return nil
		},
	}
}
