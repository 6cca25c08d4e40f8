// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bartekus/svnmonitor/internal/config"
	"github.com/bartekus/svnmonitor/internal/projection"
	"github.com/bartekus/svnmonitor/internal/runner"
	"github.com/bartekus/svnmonitor/internal/state"
)

type repoStatus struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Revision int            `json:"revision"`
	Last     *runner.Result `json:"last_check,omitempty"`
}

type statusOutput struct {
	StateFile    string            `json:"state_file"`
	Repositories []repoStatus      `json:"repositories"`
	Untracked    state.Revisions   `json:"untracked,omitempty"`
	LastCycle    *runner.LastCycle `json:"last_cycle"`
}

func newStatusCmd(a *app) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored revisions and the last cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := collectStatus(a, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(out, st, cfg.System.Location())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output status in JSON")
	return cmd
}

func collectStatus(a *app, cfg *config.Config) (*statusOutput, error) {
	revStore, runs := a.stores(cfg)
	revs, err := revStore.Load(nil)
	if err != nil {
		return nil, err
	}
	last, err := runs.ReadLastCycle()
	if err != nil {
		return nil, err
	}

	st := &statusOutput{StateFile: revStore.Path(), LastCycle: last, Repositories: []repoStatus{}}
	for _, r := range cfg.Repositories {
		res, err := runs.ReadResult(r.ID)
		if err != nil {
			return nil, err
		}
		st.Repositories = append(st.Repositories, repoStatus{
			ID:       r.ID,
			Name:     r.DisplayName(),
			Revision: revs[r.ID],
			Last:     res,
		})
		delete(revs, r.ID)
	}
	if len(revs) > 0 {
		st.Untracked = revs
	}
	return st, nil
}

func printStatus(w io.Writer, st *statusOutput, loc *time.Location) {
	rows := make([][]string, 0, len(st.Repositories))
	for _, r := range st.Repositories {
		row := []string{r.ID, r.Name, strconv.Itoa(r.Revision), "", ""}
		if r.Last != nil {
			row[3] = string(r.Last.Status)
			row[4] = r.Last.Finished.In(loc).Format(time.DateTime)
		}
		rows = append(rows, row)
	}
	writeLine(w, "State file: %s\n", st.StateFile)
	_, _ = io.WriteString(w, projection.RenderTable([]string{"Repository", "Name", "Revision", "Last check", "Checked at"}, rows))

	for _, id := range projection.SortedKeys(st.Untracked) {
		writeLine(w, "untracked: %s at revision %d", id, st.Untracked[id])
	}

	if st.LastCycle == nil {
		writeLine(w, "\nNo cycle has run yet.")
		return
	}
	c := st.LastCycle
	writeLine(w, "\nLast cycle %s: %s, %s to %s", c.ID, c.Status,
		c.Started.In(loc).Format(time.DateTime), c.Finished.In(loc).Format(time.DateTime))
	if len(c.Changed) > 0 {
		writeLine(w, "  changed: %v", c.Changed)
	}
	if len(c.Failed) > 0 {
		writeLine(w, "  failed:  %v", c.Failed)
	}
}
