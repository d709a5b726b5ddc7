package app

import (
	"context"
	"sync"

	"trivia-live-service/internal/domain"
)

// WatchGame streams the game document: its current value first, then every
// later version. Intermediate versions may be skipped by a slow reader.
func (c *Controller) WatchGame(ctx context.Context, gameID string) (<-chan domain.Game, func(), error) {
	return watch(ctx, c.docs.store, CollectionGames, gameID, func(ctx context.Context, ch Change) (domain.Game, bool) {
		if ch.Deleted {
			return domain.Game{}, false
		}
		g, err := decodeGame(ch.Doc)
		return g, err == nil
	})
}

// WatchPlayers streams the ranked roster whenever any player document changes.
func (c *Controller) WatchPlayers(ctx context.Context, gameID string) (<-chan []domain.LeaderboardEntry, func(), error) {
	return watch(ctx, c.docs.store, PlayersCollection(gameID), "", func(ctx context.Context, _ Change) ([]domain.LeaderboardEntry, bool) {
		players, err := c.docs.Players(ctx, gameID)
		if err != nil {
			c.log.WithError(err).WithField("game_id", gameID).Warn("roster refresh failed")
			return nil, false
		}
		return domain.Rank(players), true
	})
}

// WatchLeaderboard streams leaderboard snapshots as scoring writes them.
func (c *Controller) WatchLeaderboard(ctx context.Context, gameID string) (<-chan domain.Leaderboard, func(), error) {
	return watch(ctx, c.docs.store, LeaderboardCollection(gameID), LeaderboardKey, func(ctx context.Context, _ Change) (domain.Leaderboard, bool) {
		lb, err := c.docs.Leaderboard(ctx, gameID)
		return lb, err == nil
	})
}

// Leaderboard returns the latest snapshot of a game.
func (c *Controller) Leaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	if _, err := c.docs.Game(ctx, gameID); err != nil {
		return domain.Leaderboard{}, err
	}
	return c.docs.Leaderboard(ctx, gameID)
}

// watch adapts a raw store subscription into a typed stream holding at most
// one pending value, always the newest.
func watch[T any](ctx context.Context, store DocumentStore, collection, key string, decode func(context.Context, Change) (T, bool)) (<-chan T, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	changes, unsubscribe, err := store.Subscribe(ctx, collection, key)
	if err != nil {
		stop()
		return nil, nil, err
	}

	out := make(chan T, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				v, ok := decode(ctx, ch)
				if !ok {
					continue
				}
				select {
				case out <- v:
				default:
					select {
					case <-out:
					default:
					}
					out <- v
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			unsubscribe()
		})
	}
	return out, cancel, nil
}
