// SPDX-License-Identifier: AGPL-3.0-or-later

/*
svnmonitor - watches Subversion repositories and emails the changes.
It runs from a post-commit hook or as a polling service, keeps the last
processed revision per repository, and only moves it forward once the
notification went out.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bartekus/svnmonitor/internal/config"
)

// NewRootCmd constructs the svnmonitor root Cobra command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	version := os.Getenv("SVNMONITOR_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "svnmonitor",
		Short:         "svnmonitor - Subversion change notifications",
		Long:          "svnmonitor checks Subversion repositories for new revisions and emails the changes to the configured recipients.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(flagError)

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringP(flagConfig, "c", config.DefaultFileName, "configuration file (.xlsx or .yaml)")
	pf.String(flagLogLevel, "", "log level override (debug, info, warn, error)")
	pf.String(flagLogFile, "", "log file override")
	pf.BoolP(flagVerbose, "v", false, "enable debug logging")

	bindEnv(a.v, pf, flagConfig, flagLogLevel, flagLogFile, flagVerbose)

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of svnmonitor",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "svnmonitor version %s\n", version)
		},
	})

	cmd.AddCommand(newHookCmd(a))
	cmd.AddCommand(newPostCommitCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newStateCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// bindEnv lets SVNMONITOR_<NAME> set each named flag. An explicit flag wins.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet, names ...string) {
	v.SetEnvPrefix("SVNMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range names {
		_ = v.BindPFlag(name, fs.Lookup(name))
	}
}
