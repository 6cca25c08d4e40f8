// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bartekus/svnmonitor/internal/monitor"
	"github.com/bartekus/svnmonitor/internal/projection"
	"github.com/bartekus/svnmonitor/internal/runner"
)

type checkOutput struct {
	Cycle    string          `json:"cycle,omitempty"`
	Results  []runner.Result `json:"results"`
	Changes  int             `json:"changes"`
	Notified bool            `json:"notified"`
	Advanced []string        `json:"advanced,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		failed  bool
		repos   []string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check cycle",
		Long: `Checks the repositories once, sends one notification for all new changes and
records the new revisions. --failed re-runs only what failed last time and
--repo limits the cycle to the named repositories.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			summary, cycleErr := s.monitor.Cycle(cmd.Context(), monitor.Selection{Failed: failed, IDs: repos})
			if summary == nil {
				return exitError(cycleErr)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				res := checkOutput{
					Cycle:    summary.ID,
					Results:  summary.Results,
					Changes:  len(summary.Changes),
					Notified: summary.Notified,
					Advanced: summary.Advanced,
				}
				if res.Results == nil {
					res.Results = []runner.Result{}
				}
				if cycleErr != nil {
					res.Error = cycleErr.Error()
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
				return exitError(cycleErr)
			}

			printResults(out, summary)
			return exitError(cycleErr)
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "re-run only the repositories that failed in the last cycle")
	cmd.Flags().StringSliceVar(&repos, "repo", nil, "repository ID, REPO_ key or name (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output results in JSON")
	cmd.MarkFlagsMutuallyExclusive("failed", "repo")
	return cmd
}

func printResults(w io.Writer, summary *monitor.CycleSummary) {
	if len(summary.Results) == 0 {
		writeLine(w, "Nothing to check.")
		return
	}
	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		rows = append(rows, []string{
			r.Repository, string(r.Status), strconv.Itoa(r.From), strconv.Itoa(r.To), strconv.Itoa(r.Changes), r.Note,
		})
	}
	_, _ = io.WriteString(w, projection.RenderTable([]string{"Repository", "Status", "From", "To", "Changes", "Note"}, rows))

	switch {
	case summary.Notified:
		writeLine(w, "\nSent %d changes.", len(summary.Changes))
	case len(summary.Changes) > 0:
		writeLine(w, "\n%d changes were not sent; stored revisions were kept.", len(summary.Changes))
	}
}
