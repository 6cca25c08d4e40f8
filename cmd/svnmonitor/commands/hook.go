// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bartekus/svnmonitor/cmd/svnmonitor/internal/clierr"
	"github.com/bartekus/svnmonitor/internal/hook"
)

func newHookCmd(a *app) *cobra.Command {
	var (
		repository string
		revision   int
	)

	cmd := &cobra.Command{
		Use:   "hook --repository PATH --revision N",
		Short: "Process one commit (post-commit hook mode)",
		Long: `Sends the changes between the last recorded revision and --revision of the
repository at --repository, then records --revision. A revision that was
already processed is ignored. The exit status is non-zero on failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if revision <= 0 {
				return clierr.Newf(clierr.CodeUsage, "--revision must be positive, got %d", revision)
			}
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			s.log.Infow("processing commit", "repository", repository, "revision", revision)
			if err := s.monitor.ProcessCommit(cmd.Context(), repository, revision); err != nil {
				s.log.Errorw("processing commit failed", "repository", repository, "revision", revision, "error", err)
				return exitError(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "repository path passed by the hook")
	cmd.Flags().IntVar(&revision, "revision", 0, "committed revision")
	_ = cmd.MarkFlagRequired("repository")
	_ = cmd.MarkFlagRequired("revision")
	return cmd
}

func newPostCommitCmd(a *app) *cobra.Command {
	var (
		program string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "post-commit REPOS REV [TXN]",
		Short: "Run the monitor for a commit, as a Subversion post-commit hook",
		Long: `Starts "svnmonitor hook" for the commit in a child process and appends its
output to --output. Call it from hooks/post-commit with the arguments
Subversion passes. The exit status is the child's exit status.`,
		Args: usageArgs(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if program == "" {
				self, err := os.Executable()
				if err != nil {
					return fmt.Errorf("locating svnmonitor executable: %w", err)
				}
				program = self
			}
			cfgPath, err := filepath.Abs(a.configPath())
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "resolving config path", err)
			}

			inv := hook.NewInvoker(program, cfgPath, output, nil)
			return inv.Invoke(cmd.Context(), args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&program, "program", "", "monitor executable (default: this binary)")
	cmd.Flags().StringVar(&output, "output", hook.DefaultLogFile, "file that collects the monitor's stdout and stderr")
	return cmd
}
