package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"trivia-live-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Documents gives typed access to the game documents. Every document is
// decoded and validated here, so malformed data never reaches scoring.
type Documents struct {
	store DocumentStore
}

func NewDocuments(store DocumentStore) *Documents {
	return &Documents{store: store}
}

// Store exposes the underlying document store.
func (d *Documents) Store() DocumentStore {
	return d.store
}

// LoadQuiz reads a quiz imported into the document store.
func (d *Documents) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	raw, err := d.store.Get(ctx, CollectionQuizzes, quizID)
	if err != nil {
		return domain.Quiz{}, storeErr("get quiz", "quiz", quizID, err)
	}
	var q domain.Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Quiz{}, domain.Invalid("quiz", err.Error())
	}
	if q.ID == "" {
		q.ID = quizID
	}
	return q, nil
}

// SaveQuiz stores or replaces a quiz document.
func (d *Documents) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	if err := d.store.Put(ctx, CollectionQuizzes, q.ID, raw); err != nil {
		return storeErr("put quiz", "quiz", q.ID, err)
	}
	return nil
}

// Game loads and validates one game.
func (d *Documents) Game(ctx context.Context, gameID string) (domain.Game, error) {
	raw, err := d.store.Get(ctx, CollectionGames, gameID)
	if err != nil {
		return domain.Game{}, storeErr("get game", "game", gameID, err)
	}
	return decodeGame(raw)
}

// GamesByJoinCode returns every game carrying code that has not ended.
func (d *Documents) GamesByJoinCode(ctx context.Context, code string) ([]domain.Game, error) {
	docs, err := d.store.Query(ctx, CollectionGames, func(_ string, raw []byte) bool {
		var probe struct {
			JoinCode string       `json:"joinCode"`
			Phase    domain.Phase `json:"phase"`
		}
		if json.Unmarshal(raw, &probe) != nil {
			return false
		}
		return probe.JoinCode == code && probe.Phase != domain.PhaseEnded
	})
	if err != nil {
		return nil, storeErr("query games", "game", code, err)
	}
	games := make([]domain.Game, 0, len(docs))
	for _, raw := range docs {
		g, err := decodeGame(raw)
		if err != nil {
			continue
		}
		games = append(games, g)
	}
	return games, nil
}

// CreateGame persists a new game document.
func (d *Documents) CreateGame(ctx context.Context, g domain.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	if err := d.store.Create(ctx, CollectionGames, g.ID, raw); err != nil {
		return storeErr("create game", "game", g.ID, err)
	}
	return nil
}

// MutateGame applies fn to the current game atomically. When fn returns an
// error the game is left untouched and that error is returned.
func (d *Documents) MutateGame(ctx context.Context, gameID string, fn func(g *domain.Game) error) (domain.Game, error) {
	var out domain.Game
	var fnErr error
	err := d.store.Update(ctx, CollectionGames, gameID, func(current []byte) ([]byte, error) {
		g, err := decodeGame(current)
		if err != nil {
			return nil, err
		}
		if fnErr = fn(&g); fnErr != nil {
			return nil, fnErr
		}
		if err := g.Validate(); err != nil {
			return nil, err
		}
		out = g
		return json.Marshal(g)
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return domain.Game{}, fnErr
		}
		return domain.Game{}, storeErr("update game", "game", gameID, err)
	}
	return out, nil
}

// Players returns the roster of a game in no particular order.
func (d *Documents) Players(ctx context.Context, gameID string) ([]domain.Player, error) {
	docs, err := d.store.Query(ctx, PlayersCollection(gameID), nil)
	if err != nil {
		return nil, storeErr("list players", "game", gameID, err)
	}
	players := make([]domain.Player, 0, len(docs))
	for key, raw := range docs {
		p, err := decodePlayer(raw)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", key, err)
		}
		players = append(players, p)
	}
	return players, nil
}

// Player loads one roster entry.
func (d *Documents) Player(ctx context.Context, gameID, playerID string) (domain.Player, error) {
	raw, err := d.store.Get(ctx, PlayersCollection(gameID), playerID)
	if err != nil {
		return domain.Player{}, storeErr("get player", "player", playerID, err)
	}
	return decodePlayer(raw)
}

// AddPlayer creates p unless it already exists. It reports whether a new
// player was created.
func (d *Documents) AddPlayer(ctx context.Context, gameID string, p domain.Player) (bool, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("marshal player: %w", err)
	}
	err = d.store.Create(ctx, PlayersCollection(gameID), p.ID, raw)
	if errors.Is(err, ErrDocumentExists) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("add player", "player", p.ID, err)
	}
	return true, nil
}

// MutatePlayer applies fn to one roster entry atomically.
func (d *Documents) MutatePlayer(ctx context.Context, gameID, playerID string, fn func(p *domain.Player) error) (domain.Player, error) {
	var out domain.Player
	var fnErr error
	err := d.store.Update(ctx, PlayersCollection(gameID), playerID, func(current []byte) ([]byte, error) {
		p, err := decodePlayer(current)
		if err != nil {
			return nil, err
		}
		if fnErr = fn(&p); fnErr != nil {
			return nil, fnErr
		}
		out = p
		return json.Marshal(p)
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return domain.Player{}, fnErr
		}
		return domain.Player{}, storeErr("update player", "player", playerID, err)
	}
	return out, nil
}

// RecordAnswer stores the first answer of a player for a question. A second
// submission returns domain.ErrAlreadyAnswered and leaves the first intact.
func (d *Documents) RecordAnswer(ctx context.Context, gameID string, a domain.Answer) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	err = d.store.Create(ctx, AnswersCollection(gameID, a.QuestionIndex), a.PlayerID, raw)
	if errors.Is(err, ErrDocumentExists) {
		return domain.ErrAlreadyAnswered
	}
	if err != nil {
		return storeErr("record answer", "answer", a.PlayerID, err)
	}
	return nil
}

// Answers returns the full ledger of one question. Malformed entries are
// skipped rather than fed into scoring.
func (d *Documents) Answers(ctx context.Context, gameID string, questionIndex int) ([]domain.Answer, error) {
	docs, err := d.store.Query(ctx, AnswersCollection(gameID, questionIndex), nil)
	if err != nil {
		return nil, storeErr("list answers", "game", gameID, err)
	}
	answers := make([]domain.Answer, 0, len(docs))
	for key, raw := range docs {
		var a domain.Answer
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		if a.PlayerID == "" {
			a.PlayerID = key
		}
		a.QuestionIndex = questionIndex
		if a.Validate() != nil {
			continue
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// PutLeaderboard replaces the leaderboard snapshot wholesale.
func (d *Documents) PutLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	raw, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := d.store.Put(ctx, LeaderboardCollection(lb.GameID), LeaderboardKey, raw); err != nil {
		return storeErr("put leaderboard", "leaderboard", lb.GameID, err)
	}
	return nil
}

// Leaderboard returns the latest snapshot, or an empty one before the first scoring pass.
func (d *Documents) Leaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	raw, err := d.store.Get(ctx, LeaderboardCollection(gameID), LeaderboardKey)
	if errors.Is(err, ErrDocumentNotFound) {
		return domain.Leaderboard{GameID: gameID, Entries: []domain.LeaderboardEntry{}}, nil
	}
	if err != nil {
		return domain.Leaderboard{}, storeErr("get leaderboard", "leaderboard", gameID, err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, domain.Invalid("leaderboard", err.Error())
	}
	if lb.Entries == nil {
		lb.Entries = []domain.LeaderboardEntry{}
	}
	return lb, nil
}

func decodeGame(raw []byte) (domain.Game, error) {
	var g domain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return domain.Game{}, domain.Invalid("game", err.Error())
	}
	if g.Settings.QuestionTimeLimit <= 0 {
		g.Settings = g.Settings.Normalize()
	}
	if err := g.Validate(); err != nil {
		return domain.Game{}, err
	}
	return g, nil
}

func decodePlayer(raw []byte) (domain.Player, error) {
	var p domain.Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Player{}, domain.Invalid("player", err.Error())
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "Player"
	}
	if err := p.Validate(); err != nil {
		return domain.Player{}, err
	}
	return p, nil
}

// storeErr maps store failures onto the domain error taxonomy.
func storeErr(op, kind, id string, err error) error {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return domain.NotFound(kind, id)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTransientStore):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &domain.TransientStoreError{Op: op, Err: err}
	}
}
