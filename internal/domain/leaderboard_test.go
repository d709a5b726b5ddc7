package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRankOrdersByScoreWithDenseRanks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rnd := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		players := make([]Player, rnd.Intn(20))
		for i := range players {
			players[i] = Player{
				ID:       string(rune('a' + i)),
				Name:     "p",
				Score:    rnd.Intn(5) * 50,
				JoinedAt: base.Add(time.Duration(rnd.Intn(3)) * time.Second),
			}
		}

		entries := Rank(players)
		require.Len(t, entries, len(players))
		for i, e := range entries {
			require.Equal(t, i+1, e.Rank)
			if i > 0 {
				require.GreaterOrEqual(t, entries[i-1].Score, e.Score)
			}
		}
	}
}

func TestRankTieBreaksOnJoinTimeThenID(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	players := []Player{
		{ID: "c", Name: "Cara", Score: 100, JoinedAt: base.Add(time.Second)},
		{ID: "b", Name: "Ben", Score: 100, JoinedAt: base},
		{ID: "a", Name: "Ann", Score: 100, JoinedAt: base.Add(time.Second)},
		{ID: "d", Name: "Dan", Score: 250, JoinedAt: base.Add(time.Hour)},
	}

	entries := Rank(players)
	ids := []string{entries[0].PlayerID, entries[1].PlayerID, entries[2].PlayerID, entries[3].PlayerID}
	require.Equal(t, []string{"d", "b", "a", "c"}, ids)

	reversed := []Player{players[3], players[2], players[1], players[0]}
	require.Equal(t, entries, Rank(reversed), "rank must not depend on input order")
}

func TestLeaderboardHelpers(t *testing.T) {
	lb := NewLeaderboard("g1", 0, []Player{
		{ID: "a", Score: 50},
		{ID: "b", Score: 142},
		{ID: "c", Score: 290},
		{ID: "d", Score: 401},
	}, time.Now())

	require.Equal(t, 1, lb.PlayerRank("d"))
	require.Equal(t, 4, lb.PlayerRank("a"))
	require.Equal(t, 0, lb.PlayerRank("missing"))
	require.Len(t, lb.TopPlayers(3), 3)
	require.Len(t, lb.TopPlayers(10), 4)

	counts := []int{}
	for _, b := range lb.ScoreDistribution() {
		counts = append(counts, b.Count)
	}
	require.Equal(t, []int{1, 1, 1, 0, 1}, counts)

	summary := lb.Summarize("b")
	require.Equal(t, 3, summary.Rank)
	require.Len(t, summary.TopPlayers, PodiumSize)
	require.Equal(t, "d", summary.TopPlayers[0].PlayerID)
	require.Len(t, summary.Distribution, 5)
	require.Zero(t, lb.Summarize("host").Rank)
}

func TestSummarizeEmptyLeaderboard(t *testing.T) {
	summary := Leaderboard{GameID: "g1"}.Summarize("a")
	require.NotNil(t, summary.TopPlayers)
	require.Empty(t, summary.TopPlayers)
	require.Zero(t, summary.Rank)
}
