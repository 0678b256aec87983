package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/services"
)

// errRejected makes the process exit non-zero after a rejected result has been printed.
var errRejected = errors.New("question rejected")

type askFlags struct {
	hint     string
	k        int
	examples bool
	limit    int
	save     bool
}

func newAskCmd(rt *runtime) *cobra.Command {
	f := &askFlags{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Turn one question into a validated query",
		Example: `  datagenie ask "total sales last month"
  datagenie ask --hint remote -k 5 "top 10 customers by revenue"
  datagenie ask --examples`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.examples {
				return runExampleQuestions(rt, cmd, f.limit)
			}
			if len(args) == 0 {
				return fmt.Errorf("a question is required")
			}
			return runAsk(rt, cmd, strings.Join(args, " "), f)
		},
	}
	cmd.Flags().StringVar(&f.hint, "hint", "auto", "Backend hint: auto, local or remote")
	cmd.Flags().IntVarP(&f.k, "k", "k", 0, "Context examples to retrieve (default from config)")
	cmd.Flags().BoolVar(&f.examples, "examples", false, "List example questions from the store instead of asking")
	cmd.Flags().IntVar(&f.limit, "limit", 10, "Maximum example questions listed with --examples")
	cmd.Flags().BoolVar(&f.save, "save", false, "Store an accepted question and query as a new example")
	return cmd
}

func runAsk(rt *runtime, cmd *cobra.Command, question string, f *askFlags) error {
	app, err := rt.loaded(cmd)
	if err != nil {
		return err
	}

	result := app.Pipeline.ProcessQuestion(cmd.Context(), question, services.Options{
		K:           f.k,
		BackendHint: models.BackendHint(f.hint),
	})

	if f.save && result.Accepted() {
		if _, err := app.Examples.Add(cmd.Context(), question, result.FinalQuery); err != nil {
			return fmt.Errorf("save example: %w", err)
		}
	}

	if rt.text() {
		printResult(cmd.OutOrStdout(), result)
	} else if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Accepted() {
		return errRejected
	}
	return nil
}

func runExampleQuestions(rt *runtime, cmd *cobra.Command, limit int) error {
	app, err := rt.application(cmd)
	if err != nil {
		return err
	}
	questions, err := app.Examples.Questions(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if rt.text() {
		for _, q := range questions {
			fmt.Fprintln(cmd.OutOrStdout(), q)
		}
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{"questions": questions})
}

func printResult(w io.Writer, r models.ValidationResult) {
	fmt.Fprintf(w, "status:     %s\n", r.Status)
	fmt.Fprintf(w, "confidence: %.2f\n", r.Confidence)
	if r.FinalQuery != "" {
		fmt.Fprintf(w, "query:\n  %s\n", strings.ReplaceAll(r.FinalQuery, "\n", "\n  "))
	}
	for _, is := range r.Issues {
		line := fmt.Sprintf("  [%s] %s: %s", is.Severity, is.Code, is.Message)
		if is.Suggestion != "" {
			line += " (" + is.Suggestion + ")"
		}
		fmt.Fprintln(w, line)
	}
	d := r.Diagnostics
	fmt.Fprintf(w, "intent:     %s (%.2f)\n", d.Intent.Label, d.Intent.Confidence)
	for _, rd := range d.Routing {
		fmt.Fprintf(w, "routing:    %s %s\n", rd.Backend, rd.Reason)
	}
}

// IsRejected reports whether err only signals that a printed result was rejected.
func IsRejected(err error) bool {
	return errors.Is(err, errRejected)
}
