package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/datagenie-engine/pkg/config"
	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/testhelpers"
)

const totalQuery = "SELECT SUM(amount) FROM sales"

type cliFixture struct {
	t          *testing.T
	dir        string
	configPath string
	local      *llm.MockBackend
	remote     *llm.MockBackend
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()

	tables, err := yaml.Marshal(map[string]any{"tables": testhelpers.SalesTables()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), tables, 0644))

	cfg := "catalog:\n" +
		"  source: file\n" +
		"  path: " + filepath.Join(dir, "catalog.yaml") + "\n" +
		"examples:\n" +
		"  path: " + filepath.Join(dir, "examples.db") + "\n"
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0644))

	t.Setenv("REDIS_HOST", "")
	t.Setenv("CATALOG_SOURCE", "file")

	return &cliFixture{
		t:          t,
		dir:        dir,
		configPath: configPath,
		local:      llm.NewMockBackend("ollama", totalQuery),
		remote:     llm.NewMockBackend("claude", totalQuery),
	}
}

func (f *cliFixture) build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	return Assemble(ctx, cfg, f.local, f.remote, logger)
}

func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	var stdout, stderr bytes.Buffer
	opts := Options{Version: "1.2.3", Build: f.build, Logger: zap.NewNop()}
	err := Execute(context.Background(), opts, append([]string{"--config", f.configPath}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestAsk_JSON(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("ask", "total", "sales")
	require.NoError(t, err)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.StatusValid, result.Status)
	assert.Equal(t, totalQuery, result.FinalQuery)
	assert.NotEmpty(t, result.Diagnostics.SnapshotVersion)
	assert.Equal(t, 1, f.local.Calls())
}

func TestAsk_HintRemote(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("ask", "--hint", "remote", "total sales")
	require.NoError(t, err)
	assert.Equal(t, 0, f.local.Calls())
	assert.Equal(t, 1, f.remote.Calls())
}

func TestAsk_TextFormat(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("--format", "text", "ask", "total sales")
	require.NoError(t, err)
	assert.Contains(t, out, "status:     valid")
	assert.Contains(t, out, totalQuery)
}

func TestAsk_RejectedExitsWithError(t *testing.T) {
	f := newCLIFixture(t)
	f.local.Response = "DELETE FROM sales"

	out, err := f.run("ask", "--hint", "local", "remove all sales")
	require.Error(t, err)
	assert.True(t, IsRejected(err))

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.True(t, result.HasIssue(models.IssueDestructiveOperation))
	assert.Empty(t, result.FinalQuery)
}

func TestAsk_RequiresQuestion(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("ask")
	require.Error(t, err)
	assert.False(t, IsRejected(err))
}

func TestAsk_SaveThenListExamples(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("ask", "--save", "total sales")
	require.NoError(t, err)

	out, err := f.run("ask", "--examples")
	require.NoError(t, err)
	var listed struct {
		Questions []string `json:"questions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, []string{"total sales"}, listed.Questions)
}

func TestBatch_ReadsFileInOrder(t *testing.T) {
	f := newCLIFixture(t)
	path := filepath.Join(f.dir, "questions.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\ntotal sales\n\nshow total revenue\n"), 0644))

	out, err := f.run("batch", path)
	require.NoError(t, err)

	var results []models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "total sales", results[0].Diagnostics.Question)
	assert.Equal(t, "show total revenue", results[1].Diagnostics.Question)
}

func TestBatch_Empty(t *testing.T) {
	f := newCLIFixture(t)
	path := filepath.Join(f.dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n# nothing\n"), 0644))

	_, err := f.run("batch", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no questions")
}

func TestReadQuestions(t *testing.T) {
	questions, err := readQuestions(strings.NewReader("  a  \n#skip\n\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, questions)
}

func TestCatalog(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("catalog")
	require.NoError(t, err)
	var view catalogView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Len(t, view.Tables, 3)
	assert.Equal(t, "file", view.Source)
	assert.True(t, strings.HasPrefix(view.Version, "v1-"))

	out, err = f.run("catalog", "--prune", "list customer names", "--max", "1")
	require.NoError(t, err)
	view = catalogView{}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Tables, 1)
	assert.Equal(t, "customers", view.Tables[0].Name)
}

func TestCatalogSources(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("--format", "text", "catalog", "sources")
	require.NoError(t, err)
	for _, typ := range []string{"file", "postgres", "sqlserver"} {
		assert.Contains(t, out, typ)
	}
}

func TestExamples_AddImportRemove(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("examples", "add", "total sales by region", "SELECT region, SUM(amount) FROM sales GROUP BY region")
	require.NoError(t, err)
	var added models.ContextExample
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	require.NotEmpty(t, added.ID)

	_, err = f.run("examples", "add", "bad", "SELECT nope FROM missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not validate")

	importPath := filepath.Join(f.dir, "examples.yaml")
	data, err := yaml.Marshal(testhelpers.SalesExamples())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(importPath, data, 0644))
	out, err = f.run("examples", "import", importPath)
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 4, counts["imported"])
	assert.Equal(t, 0, counts["skipped"])

	_, err = f.run("examples", "rm", added.ID)
	require.NoError(t, err)

	out, err = f.run("examples", "list")
	require.NoError(t, err)
	var listed []models.ContextExample
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	// The imported "total sales by region" kept the id of the first add.
	assert.Len(t, listed, 3)
}

func TestStatus(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("status")
	require.NoError(t, err)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "1.2.3", view.Version)
	require.NotNil(t, view.Snapshot)
	assert.Equal(t, 3, view.Snapshot.Tables)
	require.Len(t, view.Backends, 2)
	for _, b := range view.Backends {
		assert.True(t, b.Configured)
		assert.Equal(t, "closed", b.Circuit)
	}
}

func TestStatus_MissingCatalog(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "catalog.yaml")))

	out, err := f.run("status")
	require.NoError(t, err)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Nil(t, view.Snapshot)
	assert.Contains(t, view.Error, "catalog")
}

func TestVersion(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("version")
	require.NoError(t, err)
	assert.Equal(t, "datagenie 1.2.3\n", out)
}

func TestStatus_Probe(t *testing.T) {
	f := newCLIFixture(t)
	f.remote.CompleteFunc = func(ctx context.Context, _ llm.Prompt, _ time.Time) (string, error) {
		return "", errors.New("401 unauthorized: invalid x-api-key")
	}

	out, err := f.run("status", "--probe")
	require.NoError(t, err)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Probes, 2)
	assert.True(t, view.Probes[0].Success)
	assert.False(t, view.Probes[1].Success)
	assert.Equal(t, "claude", view.Probes[1].Backend)
}
