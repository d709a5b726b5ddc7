package domain

import (
	"fmt"
	"strings"
)

// Validate checks the invariants a question needs before it can be scored.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return Invalid("question.text", "must not be empty")
	}
	if len(q.Options) != OptionCount {
		return Invalid("question.options", fmt.Sprintf("need exactly %d options, got %d", OptionCount, len(q.Options)))
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return Invalid("question.correctAnswer", fmt.Sprintf("index %d out of range", q.CorrectAnswer))
	}
	if q.TimeLimit < 0 {
		return Invalid("question.timeLimit", "must not be negative")
	}
	return nil
}

// Validate checks that a quiz can be played.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return Invalid("quiz.id", "must not be empty")
	}
	if len(q.Questions) == 0 {
		return Invalid("quiz.questions", "quiz has no questions")
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// Normalize fills zero-valued settings with defaults.
func (s Settings) Normalize() Settings {
	if s.QuestionTimeLimit <= 0 {
		s.QuestionTimeLimit = DefaultTimeLimit
	}
	return s
}

// Validate checks a game document read back from the store.
func (g Game) Validate() error {
	if g.ID == "" {
		return Invalid("game.id", "must not be empty")
	}
	if !g.Phase.Valid() {
		return Invalid("game.phase", fmt.Sprintf("unknown phase %q", g.Phase))
	}
	if g.CurrentQuestionIndex < 0 {
		return Invalid("game.currentQuestionIndex", "must not be negative")
	}
	if g.QuestionCount > 0 && g.CurrentQuestionIndex >= g.QuestionCount {
		return Invalid("game.currentQuestionIndex", "past the last question")
	}
	if g.TimeLeft != nil && *g.TimeLeft < 0 {
		return Invalid("game.timeLeft", "must not be negative")
	}
	return nil
}

// Validate checks a player document read back from the store.
func (p Player) Validate() error {
	if p.ID == "" {
		return Invalid("player.id", "must not be empty")
	}
	if p.Score < 0 {
		return Invalid("player.score", "must not be negative")
	}
	return nil
}

// Validate checks an answer document read back from the store.
func (a Answer) Validate() error {
	if a.PlayerID == "" {
		return Invalid("answer.playerId", "must not be empty")
	}
	if a.SelectedOption < 0 || a.SelectedOption >= OptionCount {
		return Invalid("answer.selectedOption", fmt.Sprintf("option %d out of range", a.SelectedOption))
	}
	if a.AnsweredAt.IsZero() {
		return Invalid("answer.answeredAt", "missing timestamp")
	}
	return nil
}
