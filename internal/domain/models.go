package domain

import "time"

// OptionCount is the number of answer options every question carries.
const OptionCount = 4

// DefaultTimeLimit is the per-question countdown used when neither the question nor the game settings set one.
const DefaultTimeLimit = 30

// Phase is one of the mutually exclusive stages of a game.
type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhaseQuestionLive Phase = "questionLive"
	PhaseResults      Phase = "results"
	PhaseEnded        Phase = "ended"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseQuestionLive, PhaseResults, PhaseEnded:
		return true
	}
	return false
}

// Question models a four-option question with exactly one correct option.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Text          string   `json:"text" yaml:"text"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit,omitempty" yaml:"timeLimit"` // seconds, defaults to 30 if zero
}

// Quiz is an ordered collection of questions. A running game only reads it.
type Quiz struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
	CreatedBy   string     `json:"createdBy" yaml:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"-"`
}

// Question returns the question at index i.
func (q Quiz) Question(i int) (Question, bool) {
	if i < 0 || i >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[i], true
}

// Settings are chosen by the host when the game is created.
type Settings struct {
	QuestionTimeLimit int  `json:"questionTimeLimit"`
	ShowLeaderboard   bool `json:"showLeaderboard"`
	AutoProgress      bool `json:"autoProgress"`
}

// DefaultSettings mirrors what the host screen offers out of the box.
func DefaultSettings() Settings {
	return Settings{
		QuestionTimeLimit: DefaultTimeLimit,
		ShowLeaderboard:   true,
		AutoProgress:      false,
	}
}

// Game is the shared state of one running quiz.
type Game struct {
	ID                   string     `json:"id"`
	JoinCode             string     `json:"joinCode"`
	QuizID               string     `json:"quizId"`
	HostID               string     `json:"hostId"`
	Phase                Phase      `json:"phase"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	QuestionCount        int        `json:"questionCount"`
	QuestionStartTime    *time.Time `json:"questionStartTime,omitempty"`
	QuestionEndTime      *time.Time `json:"questionEndTime,omitempty"`
	TimeLeft             *int       `json:"timeLeft,omitempty"`
	LastTimerUpdate      *time.Time `json:"lastTimerUpdate,omitempty"`
	Settings             Settings   `json:"settings"`
	CreatedAt            time.Time  `json:"createdAt"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	EndedAt              *time.Time `json:"endedAt,omitempty"`
}

// TimeLimitFor resolves the countdown length for q in this game.
func (g Game) TimeLimitFor(q Question) int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	if g.Settings.QuestionTimeLimit > 0 {
		return g.Settings.QuestionTimeLimit
	}
	return DefaultTimeLimit
}

// IsHost reports whether userID runs this game.
func (g Game) IsHost(userID string) bool {
	return userID != "" && g.HostID == userID
}

// Player is one participant of a game. Score is the sum of Awards.
type Player struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Score          int         `json:"score"`
	JoinedAt       time.Time   `json:"joinedAt"`
	LastAnsweredAt *time.Time  `json:"lastAnsweredAt,omitempty"`
	Awards         map[int]int `json:"awards,omitempty"` // questionIndex -> points
}

// Answer is a player's single submission for one question.
type Answer struct {
	PlayerID          string    `json:"playerId"`
	QuestionIndex     int       `json:"questionIndex"`
	SelectedOption    int       `json:"selectedOption"`
	AnsweredAt        time.Time `json:"answeredAt"`
	QuestionStartedAt time.Time `json:"questionStartedAt"`
	IsCorrect         bool      `json:"isCorrect"`
}

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
}

// Leaderboard is the full ranked snapshot written after every scoring pass.
type Leaderboard struct {
	GameID        string             `json:"gameId"`
	QuestionIndex int                `json:"questionIndex"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Identity is what the identity provider tells us about the caller.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// QuestionView is what viewers see of the active question. The correct
// option is only filled in once answers can no longer change.
type QuestionView struct {
	Index         int      `json:"index"`
	Total         int      `json:"total"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	TimeLimit     int      `json:"timeLimit"`
	CorrectAnswer *int     `json:"correctAnswer,omitempty"`
}

// ViewQuestion builds the viewer-facing question for the game's current index.
func ViewQuestion(g Game, quiz Quiz, reveal bool) (QuestionView, bool) {
	q, ok := quiz.Question(g.CurrentQuestionIndex)
	if !ok {
		return QuestionView{}, false
	}
	view := QuestionView{
		Index:     g.CurrentQuestionIndex,
		Total:     len(quiz.Questions),
		Text:      q.Text,
		Options:   append([]string(nil), q.Options...),
		TimeLimit: g.TimeLimitFor(q),
	}
	if reveal || g.Phase == PhaseResults || g.Phase == PhaseEnded {
		correct := q.CorrectAnswer
		view.CorrectAnswer = &correct
	}
	return view, true
}
