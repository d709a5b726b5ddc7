package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	redisstore "trivia-live-service/internal/infra/redis"
)

func TestReadQuizFile(t *testing.T) {
	quiz, err := readQuizFile(filepath.Join("..", "..", "config", "sample_quiz.yaml"))
	require.NoError(t, err)
	require.Equal(t, "space-basics", quiz.ID)
	require.Len(t, quiz.Questions, 5)
	require.Equal(t, 20, quiz.Questions[1].TimeLimit)
	require.Equal(t, []string{"0", "1", "2", "4"}, quiz.Questions[1].Options)
}

func TestReadQuizFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: bad\nquestions:\n  - text: Q\n    options: [a, b]\n"), 0o600))

	_, err := readQuizFile(path)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestQuizWriterNeedsBackend(t *testing.T) {
	_, _, err := quizWriter(config.Config{})
	require.Error(t, err)
}

func TestQuizImportEvictsCachedQuiz(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	var cfg config.Config
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Prefix = "trivia"

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger, _ := logtest.NewNullLogger()
	docs := app.NewDocuments(redisstore.NewStore(client, cfg.Redis.Prefix, logger))
	cache := redisstore.NewQuizRepository(client, docs, time.Hour, logger)

	original := memory.SampleQuiz()
	require.NoError(t, docs.SaveQuiz(ctx, original))
	cached, err := cache.GetQuiz(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, original.Title, cached.Title)

	writer, closeFn, err := quizWriter(cfg)
	require.NoError(t, err)
	defer closeFn()

	updated := memory.SampleQuiz()
	updated.Title = "Re-imported"
	require.NoError(t, writer.SaveQuiz(ctx, updated))

	fresh, err := cache.GetQuiz(ctx, updated.ID)
	require.NoError(t, err)
	require.Equal(t, "Re-imported", fresh.Title)
}

func TestSampleFallback(t *testing.T) {
	docs := app.NewDocuments(memory.NewStore())
	loader := withSample{docs}

	quiz, err := loader.LoadQuiz(context.Background(), "sample")
	require.NoError(t, err)
	require.Equal(t, memory.SampleQuiz().ID, quiz.ID)

	_, err = loader.LoadQuiz(context.Background(), "other")
	require.ErrorIs(t, err, domain.ErrNotFound)

	imported := memory.SampleQuiz()
	imported.Title = "Imported"
	require.NoError(t, docs.SaveQuiz(context.Background(), imported))
	quiz, err = loader.LoadQuiz(context.Background(), "sample")
	require.NoError(t, err)
	require.Equal(t, "Imported", quiz.Title)
}
