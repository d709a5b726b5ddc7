package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/infra/postgres"
	redisstore "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/logging"
	transport "trivia-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", os.Getenv("PORT"), "port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var store app.DocumentStore
	if redisClient != nil {
		store = redisstore.NewStore(redisClient, cfg.Redis.Prefix, log)
	} else {
		log.Warn("redis not configured, game state is kept in memory and lost on restart")
		store = memory.NewStore()
	}
	docs := app.NewDocuments(store)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	quizzes := quizRepository(cfg, docs, pool, redisClient, log)

	timers := app.NewActiveTimers(docs, log)
	scoring := app.NewScoringEngine(docs, quizzes, log)
	ctrl := app.NewController(docs, quizzes, timers, scoring, log)
	ctrl.SetDefaultSettings(cfg.GameSettings())

	handler := transport.NewRouter(ctrl, log, transport.RouterConfig{
		Auth:           transport.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		PublicURL:      cfg.Server.PublicURL,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting trivia server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	timers.Close()
	return err
}

// quizRepository picks the quiz source (Postgres, else the document store
// with the sample quiz as a last resort) and the cache in front of it.
func quizRepository(cfg config.Config, docs *app.Documents, pool *pgxpool.Pool, client *redis.Client, log logrus.FieldLogger) app.QuizRepository {
	var loader memory.QuizLoader = withSample{docs}
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	ttl := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if client != nil {
		return redisstore.NewQuizRepository(client, loader, ttl, log)
	}
	return memory.NewQuizRepository(loader, ttl)
}

// withSample serves the built-in sample quiz when it was never imported.
type withSample struct {
	docs *app.Documents
}

func (w withSample) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := w.docs.LoadQuiz(ctx, quizID)
	if errors.Is(err, domain.ErrNotFound) && quizID == memory.SampleQuiz().ID {
		return memory.SampleQuiz(), nil
	}
	return quiz, err
}
