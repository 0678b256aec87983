package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/services"
)

type batchFlags struct {
	hint string
	k    int
}

func newBatchCmd(rt *runtime) *cobra.Command {
	f := &batchFlags{}
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Answer one question per line from a file or stdin",
		Long:  "Reads questions one per line. Blank lines and lines starting with # are skipped. Results keep input order.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				in = file
			}
			return runBatch(rt, cmd, in, f)
		},
	}
	cmd.Flags().StringVar(&f.hint, "hint", "auto", "Backend hint: auto, local or remote")
	cmd.Flags().IntVarP(&f.k, "k", "k", 0, "Context examples to retrieve (default from config)")
	return cmd
}

func readQuestions(r io.Reader) ([]string, error) {
	var questions []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}

func runBatch(rt *runtime, cmd *cobra.Command, in io.Reader, f *batchFlags) error {
	questions, err := readQuestions(in)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions to process")
	}

	app, err := rt.loaded(cmd)
	if err != nil {
		return err
	}

	logger := app.Logger.Named("batch")
	results := app.Pipeline.ProcessBatch(cmd.Context(), questions, services.Options{
		K:           f.k,
		BackendHint: models.BackendHint(f.hint),
	}, func(completed, total int) {
		logger.Debug("Batch progress", zap.Int("completed", completed), zap.Int("total", total))
	})

	accepted := 0
	for _, r := range results {
		if r.Accepted() {
			accepted++
		}
	}
	logger.Info("Batch complete",
		zap.Int("questions", len(questions)),
		zap.Int("accepted", accepted),
		zap.Int("rejected", len(questions)-accepted))

	if rt.text() {
		w := cmd.OutOrStdout()
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "question:   %s\n", questions[i])
			printResult(w, r)
		}
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), results)
}
