package domain

import (
	"sort"
	"time"
)

// Rank orders players by score descending and assigns 1-based ranks in that
// order. Equal scores fall back to earliest join, then player id, so the
// result is deterministic for any input order.
func Rank(players []Player) []LeaderboardEntry {
	sorted := make([]Player, len(players))
	copy(sorted, players)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	entries := make([]LeaderboardEntry, len(sorted))
	for i, p := range sorted {
		entries[i] = LeaderboardEntry{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Score:      p.Score,
			Rank:       i + 1,
		}
	}
	return entries
}

// NewLeaderboard builds the snapshot persisted after a scoring pass.
func NewLeaderboard(gameID string, questionIndex int, players []Player, now time.Time) Leaderboard {
	return Leaderboard{
		GameID:        gameID,
		QuestionIndex: questionIndex,
		Entries:       Rank(players),
		UpdatedAt:     now,
	}
}

// PlayerRank returns the rank of playerID, or 0 if absent.
func (l Leaderboard) PlayerRank(playerID string) int {
	for _, e := range l.Entries {
		if e.PlayerID == playerID {
			return e.Rank
		}
	}
	return 0
}

// TopPlayers returns at most n leading entries.
func (l Leaderboard) TopPlayers(n int) []LeaderboardEntry {
	if n < 0 {
		n = 0
	}
	if n > len(l.Entries) {
		n = len(l.Entries)
	}
	return l.Entries[:n]
}

// PodiumSize is how many leading players a Summary lists.
const PodiumSize = 3

// Summary is the end-of-game view of a leaderboard. Rank is the viewer's
// own place, 0 when the viewer did not play.
type Summary struct {
	TopPlayers   []LeaderboardEntry `json:"topPlayers"`
	Distribution []ScoreBucket      `json:"distribution"`
	Rank         int                `json:"rank,omitempty"`
}

// Summarize builds the final standings as seen by viewerID.
func (l Leaderboard) Summarize(viewerID string) Summary {
	return Summary{
		TopPlayers:   append([]LeaderboardEntry{}, l.TopPlayers(PodiumSize)...),
		Distribution: l.ScoreDistribution(),
		Rank:         l.PlayerRank(viewerID),
	}
}

// ScoreBucket is one bar of the end-of-game score histogram.
type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// ScoreDistribution buckets scores into 0-100, 101-200, 201-300, 301-400 and 400+.
func (l Leaderboard) ScoreDistribution() []ScoreBucket {
	buckets := []ScoreBucket{{Range: "0-100"}, {Range: "101-200"}, {Range: "201-300"}, {Range: "301-400"}, {Range: "400+"}}
	for _, e := range l.Entries {
		switch {
		case e.Score <= 100:
			buckets[0].Count++
		case e.Score <= 200:
			buckets[1].Count++
		case e.Score <= 300:
			buckets[2].Count++
		case e.Score <= 400:
			buckets[3].Count++
		default:
			buckets[4].Count++
		}
	}
	return buckets
}
