package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

type catalogView struct {
	Version     string         `json:"version"`
	Fingerprint string         `json:"fingerprint"`
	Source      string         `json:"source"`
	Examples    int            `json:"examples"`
	Tables      []models.Table `json:"tables"`
	// Entities is set when tables were pruned for a question.
	Entities []models.Entity `json:"entities,omitempty"`
}

func newCatalogCmd(rt *runtime) *cobra.Command {
	var (
		prune string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the loaded schema catalog",
		Long:  "Loads the configured catalog and prints its tables. With --prune, prints only the tables a prompt for that question would include.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.loaded(cmd)
			if err != nil {
				return err
			}
			snap, err := app.Snapshots.Load()
			if err != nil {
				return err
			}

			view := catalogView{
				Version:     snap.Version,
				Fingerprint: snap.Catalog.Fingerprint(),
				Source:      app.Config.Catalog.Source,
				Examples:    snap.Index.Len(),
				Tables:      snap.Catalog.Tables(),
			}
			if prune != "" {
				entities, err := snap.Extractor.Extract(prune)
				if err != nil {
					return err
				}
				if limit <= 0 {
					limit = app.Config.Pipeline.MaxPromptTables
				}
				view.Entities = entities
				view.Tables = snap.Catalog.Prune(prune, entities, limit)
			}

			if !rt.text() {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "snapshot %s (%s source, %d examples)\n", view.Version, view.Source, view.Examples)
			for _, t := range view.Tables {
				cols := make([]string, 0, len(t.Columns))
				for _, c := range t.Columns {
					cols = append(cols, c.Name+" "+c.Type)
				}
				fmt.Fprintf(w, "%s(%s)\n", t.Name, strings.Join(cols, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prune, "prune", "", "Show only the tables relevant to this question")
	cmd.Flags().IntVar(&limit, "max", 0, "Maximum pruned tables (default from config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "sources",
		Short: "List the registered catalog source types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := catalogsource.RegisteredSources()
			if !rt.text() {
				return writeJSON(cmd.OutOrStdout(), sources)
			}
			for _, s := range sources {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", s.Type, s.Description)
			}
			return nil
		},
	})
	return cmd
}
