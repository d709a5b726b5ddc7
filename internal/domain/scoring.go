package domain

import (
	"math"
	"time"
)

const (
	// BasePoints is awarded for every correct answer.
	BasePoints = 100
	// MaxTimeBonus is added on top for an instant answer and shrinks linearly to zero at the deadline.
	MaxTimeBonus = 50
)

// Points returns what an answer is worth for a question with the given
// time limit (seconds). Wrong answers are worth nothing.
func Points(a Answer, q Question, timeLimit int) int {
	if a.SelectedOption != q.CorrectAnswer {
		return 0
	}
	return BasePoints + TimeBonus(a.AnsweredAt.Sub(a.QuestionStartedAt), timeLimit)
}

// TimeBonus maps elapsed time onto 0..MaxTimeBonus. Elapsed is clamped to
// [0, timeLimit], so answers stamped before the clock started get the full bonus.
func TimeBonus(elapsed time.Duration, timeLimit int) int {
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	maxMs := float64(timeLimit) * 1000
	ms := float64(elapsed.Milliseconds())
	ms = math.Max(0, math.Min(ms, maxMs))
	ratio := 1 - ms/maxMs
	return int(math.Round(ratio * MaxTimeBonus))
}

// RemainingSeconds is the locally rendered countdown between authoritative
// ticks. It is for display only and never feeds scoring.
func RemainingSeconds(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
