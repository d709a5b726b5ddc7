package app

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned by stores when a key has no document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentExists is returned by Create when the key is already taken.
	ErrDocumentExists = errors.New("document already exists")
)

// Change notifies a subscriber that a document was written or deleted.
// Doc carries the latest content at delivery time.
type Change struct {
	Collection string
	Key        string
	Doc        []byte
	Deleted    bool
}

// DocumentStore is the shared source of truth. Every participant observes
// game state only through it (in-memory, Redis, etc).
//
// Writes to one document are applied in submission order. Subscribers first
// receive the current value(s) and then each later change of the matching
// documents; a slow subscriber may skip intermediate states but always ends
// up with the latest one. There are no cross-document guarantees.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, doc []byte) error
	// Create writes doc only if key is absent, otherwise ErrDocumentExists.
	Create(ctx context.Context, collection, key string, doc []byte) error
	// Update atomically replaces the document with fn(current). If fn
	// returns an error nothing is written and the error is returned as is.
	Update(ctx context.Context, collection, key string, fn func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context, collection, key string) error
	// Query returns every document in collection accepted by match (nil matches all).
	Query(ctx context.Context, collection string, match func(key string, doc []byte) bool) (map[string][]byte, error)
	// Subscribe watches one document, or the whole collection when key is empty.
	// The caller must invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, collection, key string) (<-chan Change, func(), error)
}

const (
	CollectionQuizzes = "quizzes"
	CollectionGames   = "games"

	// LeaderboardKey is the single document in a game's leaderboard collection.
	LeaderboardKey = "current"
)

// PlayersCollection is the roster of one game.
func PlayersCollection(gameID string) string {
	return CollectionGames + "/" + gameID + "/players"
}

// AnswersCollection is the answer ledger of one question, keyed by player id.
func AnswersCollection(gameID string, questionIndex int) string {
	return fmt.Sprintf("%s/%s/answers/question-%d", CollectionGames, gameID, questionIndex)
}

// LeaderboardCollection holds the leaderboard snapshot of one game.
func LeaderboardCollection(gameID string) string {
	return CollectionGames + "/" + gameID + "/leaderboard"
}
