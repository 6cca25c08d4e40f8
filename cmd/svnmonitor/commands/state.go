// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bartekus/svnmonitor/cmd/svnmonitor/internal/clierr"
)

func newStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Manage stored revisions",
	}
	cmd.AddCommand(newStateResetCmd(a), newStateSetCmd(a))
	return cmd
}

func newStateResetCmd(a *app) *cobra.Command {
	var runs bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every stored revision",
		Long: `Removes the revision file, so the next check treats every revision as new.
With --runs the cycle reports are cleared as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			revs, runStore := a.stores(cfg)
			if err := revs.Reset(); err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "Removed %s", revs.Path())
			if runs {
				if err := runStore.Reset(); err != nil {
					return err
				}
				writeLine(cmd.OutOrStdout(), "Removed %s", runStore.Dir())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&runs, "runs", false, "also clear the cycle reports")
	return cmd
}

func newStateSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set ID REVISION",
		Short: "Record a revision as processed",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			repo, ok := cfg.Repository(args[0])
			if !ok {
				return clierr.Newf(clierr.CodeUsage, "unknown repository %q", args[0])
			}
			rev, err := strconv.Atoi(args[1])
			if err != nil || rev < 0 {
				return clierr.Newf(clierr.CodeUsage, "invalid revision %q", args[1])
			}

			revs, _ := a.stores(cfg)
			if err := revs.Set(repo.ID, rev); err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "%s is now at revision %d", repo.ID, rev)
			return nil
		},
	}
}
