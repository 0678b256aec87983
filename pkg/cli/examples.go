package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/services"
)

func newExamplesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Manage the stored question/query examples used as context",
	}
	cmd.AddCommand(
		newExamplesListCmd(rt),
		newExamplesAddCmd(rt),
		newExamplesImportCmd(rt),
		newExamplesRemoveCmd(rt),
	)
	return cmd
}

func newExamplesListCmd(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.application(cmd)
			if err != nil {
				return err
			}
			examples, err := app.Examples.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if examples == nil {
				examples = []models.ContextExample{}
			}
			if !rt.text() {
				return writeJSON(cmd.OutOrStdout(), examples)
			}
			for _, ex := range examples {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n    %s\n", ex.ID, ex.Question, ex.Query)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum examples listed (0 lists all)")
	return cmd
}

func newExamplesAddCmd(rt *runtime) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add <question> <query>",
		Short: "Store a question with the query that answers it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.loaded(cmd)
			if err != nil {
				return err
			}
			if !force {
				if err := checkExample(app, models.ContextExample{Question: args[0], Query: args[1]}); err != nil {
					return err
				}
			}
			ex, err := app.Examples.Add(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ex)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Store the query without validating it against the catalog")
	return cmd
}

func newExamplesImportCmd(rt *runtime) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import examples from a YAML list of {question, query} entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var examples []models.ContextExample
			if err := yaml.Unmarshal(data, &examples); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			app, err := rt.loaded(cmd)
			if err != nil {
				return err
			}

			accepted := examples[:0]
			for _, ex := range examples {
				if !force {
					if err := checkExample(app, ex); err != nil {
						app.Logger.Warn("Skipping example", zap.String("question", ex.Question), zap.Error(err))
						continue
					}
				}
				accepted = append(accepted, ex)
			}
			if err := app.Examples.AddAll(cmd.Context(), accepted); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{
				"imported": len(accepted),
				"skipped":  len(examples) - len(accepted),
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Import queries without validating them against the catalog")
	return cmd
}

func newExamplesRemoveCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a stored example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.application(cmd)
			if err != nil {
				return err
			}
			return app.Examples.Delete(cmd.Context(), args[0])
		},
	}
}

// checkExample fails when the query has an error-severity issue against the
// current catalog.
func checkExample(app *App, ex models.ContextExample) error {
	snap, err := app.Snapshots.Load()
	if err != nil {
		return err
	}
	draft := &models.DraftQuery{Text: ex.Query}
	report := services.NewQueryValidator(app.Logger).Validate(draft, snap.Catalog)
	for _, is := range report.Issues {
		if is.Severity == models.SeverityError {
			return fmt.Errorf("query does not validate: %s: %s", is.Code, is.Message)
		}
	}
	return nil
}
