package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/usecase"
)

type fakeDocs struct {
	query string
	limit int
	hits  []domain.DocumentHit
	err   error
}

func (f *fakeDocs) Search(_ context.Context, query string, limit int) ([]domain.DocumentHit, error) {
	f.query, f.limit = query, limit
	return f.hits, f.err
}

type fakeRunner struct{ lang, code string }

func (f *fakeRunner) Run(_ context.Context, lang, code string) (string, error) {
	f.lang, f.code = lang, code
	return "", nil
}

type fakeImages struct {
	got    domain.Attachment
	prompt string
}

func (f *fakeImages) Analyze(_ context.Context, img domain.Attachment, prompt string) (string, error) {
	f.got, f.prompt = img, prompt
	return "a bar chart", nil
}

func newTestExecutor(t *testing.T, opts Options) *Executor {
	t.Helper()
	e, err := NewExecutor(opts)
	require.NoError(t, err)
	return e
}

func call(tool domain.ToolName, params map[string]any) domain.ToolCall {
	return domain.ToolCall{Tool: tool, Parameters: params}
}

func TestExecutorSchemas(t *testing.T) {
	e := newTestExecutor(t, Options{})
	schemas := e.Schemas()
	require.Len(t, schemas, len(domain.AllTools))
	for i, s := range schemas {
		assert.Equal(t, domain.AllTools[i], s.Name)
		assert.NotEmpty(t, s.Description)
	}
}

func TestExecutorCalculate(t *testing.T) {
	e := newTestExecutor(t, Options{})
	res, err := e.Execute(context.Background(), call(domain.ToolCalculate, map[string]any{"expression": "17*23"}), domain.ToolContext{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "391", res.Output)

	res, err = e.Execute(context.Background(), call(domain.ToolCalculate, map[string]any{"expression": "rm -rf"}), domain.ToolContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "only numbers")
}

func TestExecutorValidatesParameters(t *testing.T) {
	e := newTestExecutor(t, Options{})

	res, err := e.Execute(context.Background(), call(domain.ToolCalculate, nil), domain.ToolContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "invalid parameters")

	res, err = e.Execute(context.Background(), call(domain.ToolSearchDocuments, map[string]any{"query": "x", "limit": 500.0}), domain.ToolContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "invalid parameters")

	res, err = e.Execute(context.Background(), call(domain.ToolCreateFile, map[string]any{"name": "../x", "content": ""}), domain.ToolContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestExecutorUnknownTool(t *testing.T) {
	e := newTestExecutor(t, Options{})
	_, err := e.Execute(context.Background(), call("send_email", nil), domain.ToolContext{})
	assert.ErrorIs(t, err, domain.ErrUnknownTool)
}

func TestExecutorRateLimit(t *testing.T) {
	e := newTestExecutor(t, Options{Limiter: NewRateLimiter(1, 1)})
	c := call(domain.ToolCalculate, map[string]any{"expression": "1+1"})

	res, err := e.Execute(context.Background(), c, domain.ToolContext{})
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = e.Execute(context.Background(), c, domain.ToolContext{})
	assert.ErrorIs(t, err, domain.ErrRateLimit)

	// Buckets are per tool.
	_, err = e.Execute(context.Background(), call(domain.ToolSearchDocuments, map[string]any{"query": "q"}), domain.ToolContext{})
	assert.NoError(t, err)
}

func TestExecutorMissingCapabilities(t *testing.T) {
	e := newTestExecutor(t, Options{})
	tests := []domain.ToolCall{
		call(domain.ToolSearchDocuments, map[string]any{"query": "q"}),
		call(domain.ToolExecutePython, map[string]any{"code": "print(1)"}),
		call(domain.ToolExecuteJavaScript, map[string]any{"code": "1"}),
		call(domain.ToolAnalyzeImage, map[string]any{}),
		call(domain.ToolCreateFile, map[string]any{"name": "a.txt", "content": "x"}),
	}
	for _, c := range tests {
		t.Run(string(c.Tool), func(t *testing.T) {
			res, err := e.Execute(context.Background(), c, domain.ToolContext{})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.Output, domain.ErrCapabilityUnavailable.Error())
		})
	}
}

func TestExecutorSearchDocuments(t *testing.T) {
	e := newTestExecutor(t, Options{})
	docs := &fakeDocs{hits: []domain.DocumentHit{
		{Source: "invoice.pdf", Snippet: " Total: 391 EUR ", Score: 0.91},
		{Source: "notes.md", Snippet: "unrelated", Score: 0.4},
	}}

	res, err := e.Execute(context.Background(), call(domain.ToolSearchDocuments, map[string]any{"query": "total", "limit": 2.0}), domain.ToolContext{Documents: docs})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "[1] invoice.pdf (score 0.91)\nTotal: 391 EUR\n[2] notes.md (score 0.40)\nunrelated", res.Output)
	assert.Equal(t, "total", docs.query)
	assert.Equal(t, 2, docs.limit)

	docs.err = errors.New("index offline")
	res, err = e.Execute(context.Background(), call(domain.ToolSearchDocuments, map[string]any{"query": "total"}), domain.ToolContext{Documents: docs})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "index offline")
	assert.Equal(t, defaultSearchLimit, docs.limit)
}

func TestExecutorRunsCode(t *testing.T) {
	e := newTestExecutor(t, Options{})
	runner := &fakeRunner{}
	res, err := e.Execute(context.Background(), call(domain.ToolExecuteJavaScript, map[string]any{"code": "console.log(1)"}), domain.ToolContext{Code: runner})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "(no output)", res.Output)
	assert.Equal(t, "javascript", runner.lang)
	assert.Equal(t, "console.log(1)", runner.code)
}

func TestExecutorAnalyzeImage(t *testing.T) {
	e := newTestExecutor(t, Options{})
	images := &fakeImages{}
	store := usecase.NewMemoryAttachmentStore()
	tc := domain.ToolContext{Images: images, Attachments: store}

	res, err := e.Execute(context.Background(), call(domain.ToolAnalyzeImage, map[string]any{}), tc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "no image")

	store.Set(domain.Attachment{ID: "img-1", Name: "chart.png"})
	store.Set(domain.Attachment{ID: "img-2", Name: "photo.jpg"})

	res, err = e.Execute(context.Background(), call(domain.ToolAnalyzeImage, map[string]any{}), tc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "a bar chart", res.Output)
	assert.Equal(t, "img-2", images.got.ID)
	assert.Equal(t, defaultImagePrompt, images.prompt)

	_, err = e.Execute(context.Background(), call(domain.ToolAnalyzeImage, map[string]any{"image_id": "img-1", "prompt": "What axis labels?"}), tc)
	require.NoError(t, err)
	assert.Equal(t, "img-1", images.got.ID)
	assert.Equal(t, "What axis labels?", images.prompt)
}

func TestExecutorCreateFileReturnsArtifact(t *testing.T) {
	dir := t.TempDir()
	files, err := NewLocalFileCreator(dir, 0, nil)
	require.NoError(t, err)
	e := newTestExecutor(t, Options{Files: files})

	res, err := e.Execute(context.Background(), call(domain.ToolCreateFile, map[string]any{"name": "report.md", "content": "# Hi"}), domain.ToolContext{})
	require.NoError(t, err)
	require.True(t, res.Success, res.Output)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, "report.md", res.Artifact.Name)
	assert.Equal(t, int64(4), res.Artifact.Size)
	assert.Equal(t, "created report.md (4 bytes)", res.Output)

	data, err := os.ReadFile(filepath.Join(files.Root(), "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hi", string(data))
}

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab\n... (truncated)", truncate("abcdef", 2))
	assert.Equal(t, "\n... (truncated)", truncate("ü", 1))
}
