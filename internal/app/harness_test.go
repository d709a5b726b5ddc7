package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *flakyStore
	docs    *app.Documents
	timers  *app.ActiveTimers
	scoring *app.ScoringEngine
	ctrl    *app.Controller
	clock   *fakeClock
	logs    *logtest.Hook
}

// newHarness wires the engine on the in-memory store. interval is the timer
// tick period; use time.Hour when a test drives results by hand.
func newHarness(t *testing.T, interval time.Duration, quizzes ...domain.Quiz) *harness {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := &flakyStore{Store: memory.NewStore()}
	docs := app.NewDocuments(store)
	repo := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizzes...), time.Minute)
	clock := newFakeClock()
	timers := app.NewActiveTimersWithClock(docs, logger, interval, clock.Now)
	scoring := app.NewScoringEngine(docs, repo, logger)
	ctrl := app.NewController(docs, repo, timers, scoring, logger)
	ctrl.SetClock(clock.Now)
	t.Cleanup(timers.Close)

	return &harness{store: store, docs: docs, timers: timers, scoring: scoring, ctrl: ctrl, clock: clock, logs: hook}
}

// lobby creates a game hosted by "host" with the given players joined.
func (h *harness) lobby(t *testing.T, quizID string, players ...string) domain.Game {
	t.Helper()
	ctx := context.Background()
	game, err := h.ctrl.CreateGame(ctx, quizID, "host", nil)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	for _, id := range players {
		if _, err := h.ctrl.JoinGame(ctx, game.ID, domain.Identity{ID: id, DisplayName: "Player " + id}); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
		h.clock.Advance(time.Millisecond)
	}
	return game
}

func (h *harness) player(t *testing.T, gameID, playerID string) domain.Player {
	t.Helper()
	p, err := h.docs.Player(context.Background(), gameID, playerID)
	if err != nil {
		t.Fatalf("load player %s: %v", playerID, err)
	}
	return p
}

// logged counts entries at level with message msg.
func (h *harness) logged(level logrus.Level, msg string) int {
	n := 0
	for _, e := range h.logs.AllEntries() {
		if e.Level == level && e.Message == msg {
			n++
		}
	}
	return n
}

func (h *harness) game(t *testing.T, gameID string) domain.Game {
	t.Helper()
	g, err := h.docs.Game(context.Background(), gameID)
	if err != nil {
		t.Fatalf("load game: %v", err)
	}
	return g
}

func quizOf(id string, limits ...int) domain.Quiz {
	q := domain.Quiz{ID: id, Title: "Test quiz"}
	for i, limit := range limits {
		q.Questions = append(q.Questions, domain.Question{
			ID:            "q" + string(rune('1'+i)),
			Text:          "Question",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: 2,
			TimeLimit:     limit,
		})
	}
	return q
}

var errStoreDown = errors.New("store unavailable")

// flakyStore fails or slows down game reads and writes on demand.
type flakyStore struct {
	*memory.Store
	failGameUpdates atomic.Bool
	failGameGets    atomic.Bool
	gameReadDelay   atomic.Int64
}

func (s *flakyStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if collection == app.CollectionGames {
		if d := s.gameReadDelay.Load(); d > 0 {
			time.Sleep(time.Duration(d))
		}
		if s.failGameGets.Load() {
			return nil, errStoreDown
		}
	}
	return s.Store.Get(ctx, collection, key)
}

func (s *flakyStore) Update(ctx context.Context, collection, key string, fn func([]byte) ([]byte, error)) error {
	if collection == app.CollectionGames && s.failGameUpdates.Load() {
		return errStoreDown
	}
	return s.Store.Update(ctx, collection, key, fn)
}
