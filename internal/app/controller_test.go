package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trivia-live-service/internal/domain"
)

func TestCorrectAnswerEarnsSpeedBonus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1", "p1")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 2))

	after, err := h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseResults, after.Phase)
	require.NotNil(t, after.TimeLeft)
	require.Equal(t, 0, *after.TimeLeft)

	require.Equal(t, 142, h.player(t, game.ID, "p1").Score)

	lb, err := h.ctrl.Leaderboard(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	require.Equal(t, domain.LeaderboardEntry{PlayerID: "p1", PlayerName: "Player p1", Score: 142, Rank: 1}, lb.Entries[0])
}

func TestWrongAnswerAndNoAnswerScoreNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1", "wrong", "silent", "right")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	require.NoError(t, h.ctrl.SubmitAnswer(ctx, game.ID, "wrong", 0, 0))
	require.NoError(t, h.ctrl.SubmitAnswer(ctx, game.ID, "right", 0, 2))

	_, err = h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)

	require.Equal(t, 0, h.player(t, game.ID, "wrong").Score)
	require.Equal(t, 0, h.player(t, game.ID, "silent").Score)

	lb, err := h.ctrl.Leaderboard(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 3)
	require.Equal(t, "right", lb.Entries[0].PlayerID)
	// Equal scores fall back to join order.
	require.Equal(t, "wrong", lb.Entries[1].PlayerID)
	require.Equal(t, "silent", lb.Entries[2].PlayerID)
	require.Equal(t, 3, lb.Entries[2].Rank)
}

func TestForceResultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1", "p1", "p2")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 2))

	first, err := h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)
	lb1, err := h.ctrl.Leaderboard(ctx, game.ID)
	require.NoError(t, err)

	// A late expiry re-scoring the same question must converge on the same state.
	_, err = h.scoring.CalculateAndUpdateScores(ctx, game.ID, 0)
	require.NoError(t, err)
	second, err := h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)
	lb2, err := h.ctrl.Leaderboard(ctx, game.ID)
	require.NoError(t, err)

	require.Equal(t, first.Phase, second.Phase)
	require.Equal(t, lb1.Entries, lb2.Entries)
	require.Equal(t, 145, h.player(t, game.ID, "p1").Score)
}

func TestConcurrentScoringPassesConverge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1", "p1", "p2", "p3")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	for _, id := range []string{"p1", "p2", "p3"} {
		h.clock.Advance(time.Second)
		require.NoError(t, h.ctrl.SubmitAnswer(ctx, game.ID, id, 0, 2))
	}

	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := h.scoring.CalculateAndUpdateScores(ctx, game.ID, 0)
			errs <- err
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-errs)
	}

	require.Equal(t, 148, h.player(t, game.ID, "p1").Score)
	require.Equal(t, 147, h.player(t, game.ID, "p2").Score)
	require.Equal(t, 145, h.player(t, game.ID, "p3").Score)
}

func TestAdvanceEndsAfterLastQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 10, 10))
	game := h.lobby(t, "quiz-1", "p1")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	_, err = h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)

	next, err := h.ctrl.Advance(ctx, game.ID, "host")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseQuestionLive, next.Phase)
	require.Equal(t, 1, next.CurrentQuestionIndex)
	require.Equal(t, 10, *next.TimeLeft)

	_, err = h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)

	ended, err := h.ctrl.Advance(ctx, game.ID, "host")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseEnded, ended.Phase)
	require.Equal(t, 1, ended.CurrentQuestionIndex)
	require.NotNil(t, ended.EndedAt)

	_, err = h.ctrl.Advance(ctx, game.ID, "host")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Equal(t, domain.PhaseEnded, h.game(t, game.ID).Phase)
}

func TestPhaseTransitionsAreGuarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 10, 10))
	game := h.lobby(t, "quiz-1", "p1")

	_, err := h.ctrl.ForceResults(ctx, game.ID, "host")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.ctrl.Advance(ctx, game.ID, "host")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.ctrl.StartGame(ctx, game.ID, "p1")
	require.ErrorIs(t, err, domain.ErrNotHost)

	_, err = h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	_, err = h.ctrl.StartGame(ctx, game.ID, "host")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Advancing while the question is live would skip results.
	_, err = h.ctrl.Advance(ctx, game.ID, "host")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Equal(t, 0, h.game(t, game.ID).CurrentQuestionIndex)
}

func TestFirstAnswerWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1", "p1")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 1))
	h.clock.Advance(time.Second)
	err = h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 2)
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)

	answers, err := h.docs.Answers(ctx, game.ID, 0)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Equal(t, 1, answers[0].SelectedOption)
	require.False(t, answers[0].IsCorrect)
}

func TestSubmitAnswerRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30, 30))
	game := h.lobby(t, "quiz-1", "p1")

	err := h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 2)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "lobby accepts no answers")

	_, err = h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)

	require.ErrorIs(t, h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 1, 2), domain.ErrValidation)
	require.ErrorIs(t, h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 4), domain.ErrValidation)
	require.ErrorIs(t, h.ctrl.SubmitAnswer(ctx, game.ID, "ghost", 0, 2), domain.ErrParticipantNotFound)
	require.ErrorIs(t, h.ctrl.SubmitAnswer(ctx, "missing", "p1", 0, 2), domain.ErrNotFound)

	_, err = h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)
	require.ErrorIs(t, h.ctrl.SubmitAnswer(ctx, game.ID, "p1", 0, 2), domain.ErrInvalidTransition)
}

func TestJoinGame(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1")

	found, err := h.ctrl.FindByJoinCode(ctx, " "+strings.ToLower(game.JoinCode)+" ")
	require.NoError(t, err)
	require.Equal(t, game.ID, found.ID)

	_, err = h.ctrl.JoinGame(ctx, game.ID, domain.Identity{ID: "p1", DisplayName: "Ann"})
	require.NoError(t, err)
	again, err := h.ctrl.JoinGame(ctx, game.ID, domain.Identity{ID: "p1", DisplayName: "Annie"})
	require.NoError(t, err)
	require.Equal(t, "Annie", again.Name)

	players, err := h.docs.Players(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)

	_, err = h.ctrl.JoinGame(ctx, game.ID, domain.Identity{ID: "host", DisplayName: "Host"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.ctrl.JoinGame(ctx, game.ID, domain.Identity{ID: "p2"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.ctrl.FindByJoinCode(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.ctrl.FindByJoinCode(ctx, "abc")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestJoinEndedGameRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, quizOf("quiz-1", 30))
	game := h.lobby(t, "quiz-1", "p1")

	_, err := h.ctrl.StartGame(ctx, game.ID, "host")
	require.NoError(t, err)
	_, err = h.ctrl.ForceResults(ctx, game.ID, "host")
	require.NoError(t, err)
	_, err = h.ctrl.Advance(ctx, game.ID, "host")
	require.NoError(t, err)

	_, err = h.ctrl.JoinGame(ctx, game.ID, domain.Identity{ID: "late", DisplayName: "Late"})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.ctrl.FindByJoinCode(ctx, game.JoinCode)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateGameChecksQuizOwner(t *testing.T) {
	ctx := context.Background()
	owned := quizOf("owned", 30)
	owned.CreatedBy = "alice"
	h := newHarness(t, time.Hour, owned)

	_, err := h.ctrl.CreateGame(ctx, "owned", "bob", nil)
	require.True(t, errors.Is(err, domain.ErrNotHost))

	game, err := h.ctrl.CreateGame(ctx, "owned", "alice", &domain.Settings{ShowLeaderboard: true})
	require.NoError(t, err)
	require.Equal(t, domain.PhaseLobby, game.Phase)
	require.Equal(t, domain.DefaultTimeLimit, game.Settings.QuestionTimeLimit)
	require.Equal(t, 1, game.QuestionCount)
	require.True(t, domain.ValidJoinCode(game.JoinCode))

	_, err = h.ctrl.CreateGame(ctx, "missing", "alice", nil)
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
}
