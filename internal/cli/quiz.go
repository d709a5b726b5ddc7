package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/postgres"
	redisstore "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/logging"
)

// QuizWriter stores quizzes into the configured catalog.
type QuizWriter interface {
	SaveQuiz(ctx context.Context, q domain.Quiz) error
}

// NewQuizCmd groups quiz catalog maintenance.
func NewQuizCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Manage the quiz catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>...",
		Short: "Import quizzes from YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format)

			writer, closeFn, err := quizWriter(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, path := range args {
				quiz, err := readQuizFile(path)
				if err != nil {
					return err
				}
				if err := writer.SaveQuiz(cmd.Context(), quiz); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				log.WithFields(logrus.Fields{"quiz_id": quiz.ID, "questions": len(quiz.Questions)}).Info("quiz imported")
			}
			return nil
		},
	})
	return cmd
}

// quizWriter prefers Postgres and falls back to the shared document store.
// With Redis configured every save also evicts the cached copy servers read.
func quizWriter(cfg config.Config) (QuizWriter, func(), error) {
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	var client *redis.Client
	if cfg.Redis.Addr != "" {
		client = newRedisClient(cfg)
	}
	closeClient := func() {
		if client != nil {
			_ = client.Close()
		}
	}

	var (
		writer  QuizWriter
		closeFn = closeClient
	)
	switch {
	case cfg.Postgres.URL != "":
		db, err := openBun(cfg)
		if err != nil {
			closeClient()
			return nil, nil, err
		}
		writer = postgres.NewQuizWriter(db)
		closeFn = func() {
			_ = db.Close()
			closeClient()
		}
	case client != nil:
		writer = app.NewDocuments(redisstore.NewStore(client, cfg.Redis.Prefix, log))
	default:
		return nil, nil, fmt.Errorf("quiz import needs postgres.url or redis.addr")
	}

	if client != nil {
		writer = evictingWriter{QuizWriter: writer, cache: redisstore.NewQuizRepository(client, nil, 0, log)}
	}
	return writer, closeFn, nil
}

// evictingWriter drops the cached quiz after a successful save.
type evictingWriter struct {
	QuizWriter
	cache *redisstore.QuizRepository
}

func (w evictingWriter) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	if err := w.QuizWriter.SaveQuiz(ctx, q); err != nil {
		return err
	}
	if err := w.cache.Invalidate(ctx, q.ID); err != nil {
		return fmt.Errorf("evict cached quiz %s: %w", q.ID, err)
	}
	return nil
}

func readQuizFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, err
	}
	var quiz domain.Quiz
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, fmt.Errorf("%s: %w", path, err)
	}
	return quiz, nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
