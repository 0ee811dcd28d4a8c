package lectern

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lectern/agent"
	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/config"
)

func newTestSystem(t *testing.T) (*System, *mock.MockProvider) {
	t.Helper()

	cfg := config.Default()
	cfg.Ingest.DocumentsDir = t.TempDir()

	provider := mock.NewMockProvider()
	sys, err := New(cfg, WithProvider(provider))
	require.NoError(t, err)
	require.NotNil(t, sys)
	t.Cleanup(func() { sys.Close() })

	return sys, provider
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewSystem(t *testing.T) {
	t.Run("defaults with injected provider", func(t *testing.T) {
		sys, _ := newTestSystem(t)

		assert.NotNil(t, sys.store)
		assert.NotNil(t, sys.pipeline)
		assert.NotNil(t, sys.agent)
		assert.NotNil(t, sys.loader)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		sys, err := New(nil, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer sys.Close()

		assert.Equal(t, "memory", sys.cfg.Store.Type)
	})

	t.Run("unset api key env uses provider default", func(t *testing.T) {
		t.Setenv("LECTERN_API_KEY", "")

		cfg := config.Default()
		cfg.Ingest.DocumentsDir = t.TempDir()

		// No injected provider: the real one must construct against
		// the default local endpoint without a key in the environment.
		sys, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, sys.Close())
	})

	t.Run("unknown store type", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Type = "pinecone"

		sys, err := New(cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, sys)
	})
}

func TestSystem_UploadAndAsk(t *testing.T) {
	sys, _ := newTestSystem(t)
	ctx := context.Background()

	question := "Какой срок предупреждения установлен в трудовом договоре?"
	result, err := sys.Upload(ctx, "labor.txt", strings.NewReader(question))
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Greater(t, result.ChunksAdded, 0)

	// The question matches the indexed text exactly, so the
	// deterministic mock embedder scores it at the top.
	resp, err := sys.Ask(ctx, question)
	require.NoError(t, err)
	assert.False(t, resp.Conversational)
	assert.NotEmpty(t, resp.Answer)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "labor.txt", resp.Sources[0].Filename)
}

func TestSystem_AskConversational(t *testing.T) {
	sys, _ := newTestSystem(t)

	resp, err := sys.Ask(context.Background(), "Привет!")
	require.NoError(t, err)
	assert.True(t, resp.Conversational)
	assert.Empty(t, resp.Sources)
}

func TestSystem_AskEmptyIndex(t *testing.T) {
	sys, _ := newTestSystem(t)

	resp, err := sys.Ask(context.Background(), "Что говорит закон об отпусках?")
	require.NoError(t, err)
	assert.Equal(t, agent.NoInfoAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestSystem_IndexDocuments(t *testing.T) {
	sys, _ := newTestSystem(t)
	ctx := context.Background()

	dir := sys.cfg.Ingest.DocumentsDir
	writeDoc(t, dir, "a.txt", "Договор аренды заключается в письменной форме.")
	writeDoc(t, dir, "b.md", "Неустойка взыскивается по статье 330 ГК РФ.")

	result, err := sys.IndexDocuments(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)

	stats, err := sys.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.ChunksAdded, stats.TotalChunks)

	t.Run("force clears before reindexing", func(t *testing.T) {
		again, err := sys.IndexDocuments(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 2, again.FilesProcessed)

		stats, err := sys.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, again.ChunksAdded, stats.TotalChunks)
	})
}

func TestSystem_ListFiles(t *testing.T) {
	sys, _ := newTestSystem(t)
	dir := sys.cfg.Ingest.DocumentsDir

	writeDoc(t, dir, "b.txt", "б")
	writeDoc(t, dir, "a.md", "а")
	writeDoc(t, dir, "skip.png", "x")

	files, err := sys.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.txt"}, files)
}

func TestSystem_Stats(t *testing.T) {
	sys, _ := newTestSystem(t)

	stats, err := sys.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, "memory", stats.StoreType)
	assert.Equal(t, sys.cfg.AI.EmbeddingModel, stats.EmbeddingModel)
	assert.Equal(t, sys.cfg.AI.CompletionModel, stats.CompletionModel)
}

func TestSystem_Clear(t *testing.T) {
	sys, _ := newTestSystem(t)
	ctx := context.Background()

	_, err := sys.Upload(ctx, "doc.txt", strings.NewReader("Закон о защите прав потребителей."))
	require.NoError(t, err)

	require.NoError(t, sys.Clear(ctx))

	stats, err := sys.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
}

func TestSystem_HealthCheck(t *testing.T) {
	sys, _ := newTestSystem(t)
	assert.NoError(t, sys.HealthCheck(context.Background()))
}

func TestSystem_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	cfg := config.Default()
	cfg.Ingest.DocumentsDir = t.TempDir()

	sys, err := New(cfg, WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, sys.Close())
	assert.True(t, provider.Closed())
}
