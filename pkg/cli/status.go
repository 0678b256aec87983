package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
)

type statusView struct {
	Version  string              `json:"version"`
	Snapshot *snapshotStatus     `json:"snapshot,omitempty"`
	Backends []llm.BackendStatus `json:"backends"`
	Probes   []llm.ProbeResult   `json:"probes,omitempty"`
	// Error is set when the snapshot could not be loaded.
	Error string `json:"error,omitempty"`
}

type snapshotStatus struct {
	Version  string    `json:"version"`
	Tables   int       `json:"tables"`
	Examples int       `json:"examples"`
	LoadedAt time.Time `json:"loaded_at"`
}

func newStatusCmd(rt *runtime) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report backend circuits and the loaded snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.application(cmd)
			if err != nil {
				return err
			}

			view := statusView{
				Version:  rt.opts.Version,
				Backends: app.Router.Status(),
			}
			if probe {
				view.Probes = app.Router.Probe(cmd.Context())
			}
			if snap, err := app.LoadSnapshot(cmd.Context()); err != nil {
				view.Error = err.Error()
			} else {
				view.Snapshot = &snapshotStatus{
					Version:  snap.Version,
					Tables:   snap.Catalog.Len(),
					Examples: snap.Index.Len(),
					LoadedAt: snap.LoadedAt,
				}
			}

			if !rt.text() {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "datagenie %s\n", view.Version)
			if view.Snapshot != nil {
				fmt.Fprintf(w, "snapshot  %s: %d tables, %d examples\n",
					view.Snapshot.Version, view.Snapshot.Tables, view.Snapshot.Examples)
			} else {
				fmt.Fprintf(w, "snapshot  unavailable: %s\n", view.Error)
			}
			for _, b := range view.Backends {
				if !b.Configured {
					fmt.Fprintf(w, "%-8s  not configured\n", b.Kind)
					continue
				}
				fmt.Fprintf(w, "%-8s  %s circuit %s, %d consecutive failures\n",
					b.Kind, b.Name, b.Circuit, b.ConsecutiveFailures)
			}
			for _, p := range view.Probes {
				fmt.Fprintf(w, "probe     %s: %s\n", p.Backend, p.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Send a short prompt to each backend, bypassing routing")
	return cmd
}

func newVersionCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "datagenie %s\n", rt.opts.Version)
		},
	}
}
