package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trivia-live-service/internal/domain"
)

// Controller contains the game session use cases: the phase state machine
// driven by the host, player joins and answer submission.
type Controller struct {
	docs     *Documents
	quizzes  QuizRepository
	timers   *ActiveTimers
	scoring  *ScoringEngine
	log      logrus.FieldLogger
	now      func() time.Time
	defaults domain.Settings
}

// NewController wires the engine together and registers the expiry path
// of the timers.
func NewController(docs *Documents, quizzes QuizRepository, timers *ActiveTimers, scoring *ScoringEngine, log logrus.FieldLogger) *Controller {
	c := &Controller{
		docs:     docs,
		quizzes:  quizzes,
		timers:   timers,
		scoring:  scoring,
		log:      log,
		now:      time.Now,
		defaults: domain.DefaultSettings(),
	}
	timers.OnExpire(c.expire)
	return c
}

// SetClock replaces the time source used for answers and phase stamps.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// SetDefaultSettings changes the settings used when a host does not pick any.
func (c *Controller) SetDefaultSettings(s domain.Settings) {
	c.defaults = s.Normalize()
}

// Documents exposes typed store access to the transport layer.
func (c *Controller) Documents() *Documents {
	return c.docs
}

// Quiz loads the quiz a game is playing.
func (c *Controller) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.quizzes.GetQuiz(ctx, quizID)
}

// CreateGame opens a lobby for quizID hosted by hostID.
func (c *Controller) CreateGame(ctx context.Context, quizID, hostID string, settings *domain.Settings) (domain.Game, error) {
	if hostID == "" {
		return domain.Game{}, domain.Invalid("hostId", "must not be empty")
	}
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Game{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.Game{}, err
	}
	if quiz.CreatedBy != "" && quiz.CreatedBy != hostID {
		return domain.Game{}, domain.ErrNotHost
	}

	s := c.defaults
	if settings != nil {
		s = settings.Normalize()
	}
	game := domain.Game{
		ID:                   uuid.NewString(),
		JoinCode:             domain.NewJoinCode(),
		QuizID:               quiz.ID,
		HostID:               hostID,
		Phase:                domain.PhaseLobby,
		CurrentQuestionIndex: 0,
		QuestionCount:        len(quiz.Questions),
		Settings:             s,
		CreatedAt:            c.now(),
	}
	if err := c.docs.CreateGame(ctx, game); err != nil {
		return domain.Game{}, err
	}
	c.log.WithFields(logrus.Fields{"game_id": game.ID, "quiz_id": quiz.ID, "join_code": game.JoinCode}).Info("game created")
	return game, nil
}

// FindByJoinCode resolves a join code to a game that has not ended. Codes
// are not guaranteed unique; on a collision the most recent lobby wins.
func (c *Controller) FindByJoinCode(ctx context.Context, code string) (domain.Game, error) {
	code = domain.NormalizeJoinCode(code)
	if !domain.ValidJoinCode(code) {
		return domain.Game{}, domain.Invalid("joinCode", "must be 6 letters or digits")
	}
	games, err := c.docs.GamesByJoinCode(ctx, code)
	if err != nil {
		return domain.Game{}, err
	}
	if len(games) == 0 {
		return domain.Game{}, domain.NotFound("game", code)
	}
	if len(games) > 1 {
		c.log.WithFields(logrus.Fields{"join_code": code, "games": len(games)}).Warn("join code collision")
	}
	best := games[0]
	for _, g := range games[1:] {
		if g.CreatedAt.After(best.CreatedAt) {
			best = g
		}
	}
	return best, nil
}

// JoinGame adds the caller to the roster. Rejoining keeps the score and
// refreshes the display name.
func (c *Controller) JoinGame(ctx context.Context, gameID string, who domain.Identity) (domain.Player, error) {
	if who.ID == "" {
		return domain.Player{}, domain.Invalid("playerId", "must not be empty")
	}
	name := strings.TrimSpace(who.DisplayName)
	if name == "" {
		return domain.Player{}, domain.Invalid("name", "must not be empty")
	}
	game, err := c.docs.Game(ctx, gameID)
	if err != nil {
		return domain.Player{}, err
	}
	if game.Phase == domain.PhaseEnded {
		return domain.Player{}, &domain.InvalidTransitionError{Op: "join", From: game.Phase}
	}
	if game.IsHost(who.ID) {
		return domain.Player{}, domain.Invalid("playerId", "the host cannot join as a player")
	}

	player := domain.Player{ID: who.ID, Name: name, JoinedAt: c.now()}
	created, err := c.docs.AddPlayer(ctx, gameID, player)
	if err != nil {
		return domain.Player{}, err
	}
	if created {
		c.log.WithFields(logrus.Fields{"game_id": gameID, "player_id": who.ID}).Info("player joined")
		return player, nil
	}
	return c.docs.MutatePlayer(ctx, gameID, who.ID, func(p *domain.Player) error {
		p.Name = name
		return nil
	})
}

// StartGame leaves the lobby and starts the countdown of the first question.
// Requiring at least one player is left to the caller.
func (c *Controller) StartGame(ctx context.Context, gameID, callerID string) (domain.Game, error) {
	game, quiz, err := c.hostGame(ctx, gameID, callerID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Phase != domain.PhaseLobby {
		return domain.Game{}, &domain.InvalidTransitionError{Op: "start game", From: game.Phase}
	}
	first, ok := quiz.Question(0)
	if !ok {
		return domain.Game{}, domain.Invalid("quiz.questions", "quiz has no questions")
	}

	started, err := c.timers.Start(ctx, gameID, game.TimeLimitFor(first), func(g *domain.Game) error {
		if g.Phase != domain.PhaseLobby {
			return &domain.InvalidTransitionError{Op: "start game", From: g.Phase}
		}
		now := c.now()
		g.Phase = domain.PhaseQuestionLive
		g.CurrentQuestionIndex = 0
		g.QuestionCount = len(quiz.Questions)
		g.StartedAt = &now
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	c.logPhase(started, "game started")
	return started, nil
}

// ForceResults ends the live question early: the countdown is cancelled,
// the question is scored and the game moves to results. Calling it again
// while already in results is a no-op.
func (c *Controller) ForceResults(ctx context.Context, gameID, callerID string) (domain.Game, error) {
	game, _, err := c.hostGame(ctx, gameID, callerID)
	if err != nil {
		return domain.Game{}, err
	}
	switch game.Phase {
	case domain.PhaseResults:
		return game, nil
	case domain.PhaseQuestionLive:
	default:
		return domain.Game{}, &domain.InvalidTransitionError{Op: "show results", From: game.Phase}
	}

	c.timers.Cancel(gameID)
	return c.finishQuestion(ctx, gameID, game.CurrentQuestionIndex)
}

// Advance moves from results to the next question, or ends the game after
// the last one. The question index never moves past the last question.
func (c *Controller) Advance(ctx context.Context, gameID, callerID string) (domain.Game, error) {
	game, quiz, err := c.hostGame(ctx, gameID, callerID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Phase != domain.PhaseResults {
		return domain.Game{}, &domain.InvalidTransitionError{Op: "advance", From: game.Phase}
	}
	from := game.CurrentQuestionIndex
	next := from + 1

	if next >= len(quiz.Questions) {
		ended, err := c.docs.MutateGame(ctx, gameID, func(g *domain.Game) error {
			if g.Phase != domain.PhaseResults || g.CurrentQuestionIndex != from {
				return &domain.InvalidTransitionError{Op: "advance", From: g.Phase}
			}
			now := c.now()
			zero := 0
			g.Phase = domain.PhaseEnded
			g.EndedAt = &now
			g.TimeLeft = &zero
			return nil
		})
		if err != nil {
			return domain.Game{}, err
		}
		c.timers.Cancel(gameID)
		c.logPhase(ended, "game ended")
		return ended, nil
	}

	question, _ := quiz.Question(next)
	advanced, err := c.timers.Start(ctx, gameID, game.TimeLimitFor(question), func(g *domain.Game) error {
		if g.Phase != domain.PhaseResults || g.CurrentQuestionIndex != from {
			return &domain.InvalidTransitionError{Op: "advance", From: g.Phase}
		}
		g.Phase = domain.PhaseQuestionLive
		g.CurrentQuestionIndex = next
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	c.logPhase(advanced, "next question")
	return advanced, nil
}

// SubmitAnswer records a player's answer to the live question. Only the
// first submission per player and question counts.
func (c *Controller) SubmitAnswer(ctx context.Context, gameID, playerID string, questionIndex, selectedOption int) error {
	if selectedOption < 0 || selectedOption >= domain.OptionCount {
		return domain.Invalid("selectedOption", "out of range")
	}
	game, err := c.docs.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Phase != domain.PhaseQuestionLive {
		return &domain.InvalidTransitionError{Op: "answer", From: game.Phase}
	}
	if game.CurrentQuestionIndex != questionIndex {
		return domain.Invalid("questionIndex", "question is no longer live")
	}
	if _, err := c.docs.Player(ctx, gameID, playerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrParticipantNotFound
		}
		return err
	}
	quiz, err := c.quizzes.GetQuiz(ctx, game.QuizID)
	if err != nil {
		return err
	}
	question, ok := quiz.Question(questionIndex)
	if !ok {
		return domain.NotFound("question", game.QuizID)
	}

	answer := domain.Answer{
		PlayerID:       playerID,
		QuestionIndex:  questionIndex,
		SelectedOption: selectedOption,
		AnsweredAt:     c.now(),
		IsCorrect:      selectedOption == question.CorrectAnswer,
	}
	if game.QuestionStartTime != nil {
		answer.QuestionStartedAt = *game.QuestionStartTime
	}
	return c.docs.RecordAnswer(ctx, gameID, answer)
}

// ReleaseHost stops the countdown of a game whose host went away. The
// question stays live until the host comes back and forces results.
func (c *Controller) ReleaseHost(gameID string) {
	if c.timers.Running(gameID) {
		c.log.WithField("game_id", gameID).Warn("host disconnected, question timer stopped")
	}
	c.timers.Cancel(gameID)
}

func (c *Controller) expire(ctx context.Context, gameID string, questionIndex int) {
	if _, err := c.finishQuestion(ctx, gameID, questionIndex); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		c.log.WithError(err).WithFields(logrus.Fields{"game_id": gameID, "question_index": questionIndex}).Error("timer expiry failed")
	}
}

// finishQuestion scores questionIndex and moves the game to results if it
// is still live on that question. Safe to run more than once.
func (c *Controller) finishQuestion(ctx context.Context, gameID string, questionIndex int) (domain.Game, error) {
	if _, err := c.scoring.CalculateAndUpdateScores(ctx, gameID, questionIndex); err != nil {
		return domain.Game{}, err
	}
	game, err := c.docs.MutateGame(ctx, gameID, func(g *domain.Game) error {
		if g.CurrentQuestionIndex != questionIndex {
			return &domain.InvalidTransitionError{Op: "show results", From: g.Phase}
		}
		switch g.Phase {
		case domain.PhaseQuestionLive:
		case domain.PhaseResults:
			return errAlreadyResults
		default:
			return &domain.InvalidTransitionError{Op: "show results", From: g.Phase}
		}
		now := c.now()
		zero := 0
		g.Phase = domain.PhaseResults
		g.TimeLeft = &zero
		g.LastTimerUpdate = &now
		return nil
	})
	if errors.Is(err, errAlreadyResults) {
		return c.docs.Game(ctx, gameID)
	}
	if err != nil {
		return domain.Game{}, err
	}
	c.logPhase(game, "question results")
	return game, nil
}

var errAlreadyResults = errors.New("already showing results")

func (c *Controller) hostGame(ctx context.Context, gameID, callerID string) (domain.Game, domain.Quiz, error) {
	game, err := c.docs.Game(ctx, gameID)
	if err != nil {
		return domain.Game{}, domain.Quiz{}, err
	}
	if !game.IsHost(callerID) {
		return domain.Game{}, domain.Quiz{}, domain.ErrNotHost
	}
	quiz, err := c.quizzes.GetQuiz(ctx, game.QuizID)
	if err != nil {
		return domain.Game{}, domain.Quiz{}, err
	}
	return game, quiz, nil
}

func (c *Controller) logPhase(g domain.Game, msg string) {
	c.log.WithFields(logrus.Fields{
		"game_id":        g.ID,
		"phase":          g.Phase,
		"question_index": g.CurrentQuestionIndex,
	}).Info(msg)
}
