// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll every repository until interrupted",
		Long: `Checks every repository right away and then again each time the shortest
check_interval has passed. SIGINT or SIGTERM stops the loop after the
current step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return exitError(s.monitor.Run(ctx))
		},
	}
}
