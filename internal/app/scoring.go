package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trivia-live-service/internal/domain"
)

// maxConcurrentScoreWrites bounds the fan-out of player score updates.
const maxConcurrentScoreWrites = 8

// ScoringEngine turns a question's answer ledger into player scores and a
// fresh leaderboard snapshot.
type ScoringEngine struct {
	docs    *Documents
	quizzes QuizRepository
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewScoringEngine(docs *Documents, quizzes QuizRepository, log logrus.FieldLogger) *ScoringEngine {
	return &ScoringEngine{docs: docs, quizzes: quizzes, log: log, now: time.Now}
}

// CalculateAndUpdateScores scores one question and regenerates the leaderboard.
//
// It is idempotent per (gameID, questionIndex): each player's award for the
// question is recomputed from the full ledger and overwritten, and the
// score is re-derived as the sum of awards. Timer expiry racing a manual
// forceResults therefore converges on the same result.
//
// Player scores are written before the leaderboard. If a score write fails
// the leaderboard is left as is and the next pass repairs both.
func (s *ScoringEngine) CalculateAndUpdateScores(ctx context.Context, gameID string, questionIndex int) (domain.Leaderboard, error) {
	log := s.log.WithFields(logrus.Fields{"game_id": gameID, "question_index": questionIndex})

	game, err := s.docs.Game(ctx, gameID)
	if err != nil {
		log.WithError(err).Error("scoring aborted: game unavailable")
		return domain.Leaderboard{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, game.QuizID)
	if err != nil {
		log.WithError(err).Error("scoring aborted: quiz unavailable")
		return domain.Leaderboard{}, err
	}
	question, ok := quiz.Question(questionIndex)
	if !ok {
		err := domain.NotFound("question", fmt.Sprintf("%s#%d", quiz.ID, questionIndex))
		log.WithError(err).Error("scoring aborted: question missing")
		return domain.Leaderboard{}, err
	}
	answers, err := s.docs.Answers(ctx, gameID, questionIndex)
	if err != nil {
		log.WithError(err).Error("scoring aborted: answers unavailable")
		return domain.Leaderboard{}, err
	}
	players, err := s.docs.Players(ctx, gameID)
	if err != nil {
		log.WithError(err).Error("scoring aborted: roster unavailable")
		return domain.Leaderboard{}, err
	}

	timeLimit := game.TimeLimitFor(question)
	byPlayer := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		if a.QuestionStartedAt.IsZero() && game.QuestionStartTime != nil && game.CurrentQuestionIndex == questionIndex {
			a.QuestionStartedAt = *game.QuestionStartTime
		}
		byPlayer[a.PlayerID] = a
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScoreWrites)
	for i := range players {
		i := i
		answer, answered := byPlayer[players[i].ID]
		points := 0
		if answered {
			points = domain.Points(answer, question, timeLimit)
		}
		if !needsUpdate(players[i], questionIndex, points, answered, answer) {
			continue
		}
		g.Go(func() error {
			updated, err := s.docs.MutatePlayer(gctx, gameID, players[i].ID, func(p *domain.Player) error {
				applyAward(p, questionIndex, points, answered, answer)
				return nil
			})
			if err != nil {
				return err
			}
			players[i] = updated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("scoring aborted: score write failed, leaderboard not regenerated")
		return domain.Leaderboard{}, err
	}

	lb := domain.NewLeaderboard(gameID, questionIndex, players, s.now())
	if err := s.docs.PutLeaderboard(ctx, lb); err != nil {
		log.WithError(err).Error("leaderboard write failed after scores were updated")
		return domain.Leaderboard{}, err
	}

	log.WithFields(logrus.Fields{"answers": len(answers), "players": len(players)}).Info("question scored")
	return lb, nil
}

func applyAward(p *domain.Player, questionIndex, points int, answered bool, a domain.Answer) {
	if p.Awards == nil {
		p.Awards = make(map[int]int)
	}
	p.Awards[questionIndex] = points
	total := 0
	for _, v := range p.Awards {
		total += v
	}
	p.Score = total
	if answered && (p.LastAnsweredAt == nil || p.LastAnsweredAt.Before(a.AnsweredAt)) {
		at := a.AnsweredAt
		p.LastAnsweredAt = &at
	}
}

// needsUpdate skips writes for players whose stored state already reflects this pass.
func needsUpdate(p domain.Player, questionIndex, points int, answered bool, a domain.Answer) bool {
	next := p
	next.Awards = make(map[int]int, len(p.Awards)+1)
	for k, v := range p.Awards {
		next.Awards[k] = v
	}
	applyAward(&next, questionIndex, points, answered, a)

	prev, had := p.Awards[questionIndex]
	if !had || prev != points || next.Score != p.Score {
		return true
	}
	if (p.LastAnsweredAt == nil) != (next.LastAnsweredAt == nil) {
		return true
	}
	return p.LastAnsweredAt != nil && !p.LastAnsweredAt.Equal(*next.LastAnsweredAt)
}
