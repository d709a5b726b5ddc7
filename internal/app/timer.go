package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trivia-live-service/internal/domain"
)

// ExpiryFunc is called once when a question's countdown reaches zero.
type ExpiryFunc func(ctx context.Context, gameID string, questionIndex int)

// ActiveTimers owns the countdowns of the games hosted by this process,
// at most one per game. It is the only component that writes to the store
// on its own schedule.
type ActiveTimers struct {
	docs     *Documents
	log      logrus.FieldLogger
	interval time.Duration
	now      func() time.Time
	onExpire ExpiryFunc

	// I/O runs on base so that cancelling a timer never interrupts a tick
	// that has already started its read/write.
	base     context.Context
	shutdown context.CancelFunc

	mu     sync.Mutex
	timers map[string]*questionTimer
	wg     sync.WaitGroup
}

type questionTimer struct {
	gameID        string
	questionIndex int
	timeLeft      int
	stop          chan struct{}
	once          sync.Once
}

func (t *questionTimer) cancel() {
	t.once.Do(func() { close(t.stop) })
}

func (t *questionTimer) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// NewActiveTimers builds the registry. Countdowns tick once per second and
// each tick takes one second off timeLeft.
func NewActiveTimers(docs *Documents, log logrus.FieldLogger) *ActiveTimers {
	return NewActiveTimersWithClock(docs, log, time.Second, time.Now)
}

// NewActiveTimersWithClock allows deterministic timestamps and a faster tick
// in tests. Each tick still counts as one second.
func NewActiveTimersWithClock(docs *Documents, log logrus.FieldLogger, interval time.Duration, now func() time.Time) *ActiveTimers {
	if interval <= 0 {
		interval = time.Second
	}
	base, shutdown := context.WithCancel(context.Background())
	return &ActiveTimers{
		docs:     docs,
		log:      log,
		interval: interval,
		now:      now,
		base:     base,
		shutdown: shutdown,
		timers:   make(map[string]*questionTimer),
	}
}

// OnExpire sets the callback run when a countdown reaches zero.
func (a *ActiveTimers) OnExpire(fn ExpiryFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onExpire = fn
}

// Start applies transition and stamps the question start/end time in the
// same write, then replaces any countdown running for gameID and starts
// ticking. transition may veto the start by returning an error, in which
// case the running countdown is left alone.
func (a *ActiveTimers) Start(ctx context.Context, gameID string, durationSeconds int, transition func(g *domain.Game) error) (domain.Game, error) {
	if durationSeconds <= 0 {
		return domain.Game{}, domain.Invalid("duration", "must be positive")
	}

	game, err := a.docs.MutateGame(ctx, gameID, func(g *domain.Game) error {
		if transition != nil {
			if err := transition(g); err != nil {
				return err
			}
		}
		now := a.now()
		end := now.Add(time.Duration(durationSeconds) * time.Second)
		left := durationSeconds
		g.QuestionStartTime = &now
		g.QuestionEndTime = &end
		g.TimeLeft = &left
		g.LastTimerUpdate = &now
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}

	t := &questionTimer{
		gameID:        gameID,
		questionIndex: game.CurrentQuestionIndex,
		timeLeft:      durationSeconds,
		stop:          make(chan struct{}),
	}

	a.mu.Lock()
	if prev, ok := a.timers[gameID]; ok {
		prev.cancel()
	}
	a.timers[gameID] = t
	a.wg.Add(1)
	a.mu.Unlock()

	go a.run(t)

	a.log.WithFields(logrus.Fields{
		"game_id":        gameID,
		"question_index": game.CurrentQuestionIndex,
		"duration":       durationSeconds,
	}).Info("question timer started")
	return game, nil
}

// Cancel stops the countdown of gameID, if any. Cancellation is cooperative:
// it takes effect at the next tick boundary.
func (a *ActiveTimers) Cancel(gameID string) {
	a.mu.Lock()
	t, ok := a.timers[gameID]
	if ok {
		delete(a.timers, gameID)
	}
	a.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// Running reports whether gameID has a live countdown.
func (a *ActiveTimers) Running(gameID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.timers[gameID]
	return ok
}

// Close stops every countdown and waits for in-flight ticks to finish.
func (a *ActiveTimers) Close() {
	a.mu.Lock()
	for id, t := range a.timers {
		t.cancel()
		delete(a.timers, id)
	}
	a.mu.Unlock()
	a.wg.Wait()
	a.shutdown()
}

func (a *ActiveTimers) run(t *questionTimer) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
		if t.stopped() {
			return
		}
		if done := a.tick(t); done {
			return
		}
	}
}

// tick publishes one decrement. It reports true when the timer is finished.
func (a *ActiveTimers) tick(t *questionTimer) bool {
	log := a.log.WithFields(logrus.Fields{"game_id": t.gameID, "question_index": t.questionIndex})

	game, err := a.docs.Game(a.base, t.gameID)
	if err != nil {
		log.WithError(err).Warn("timer tick read failed, cancelling timer")
		a.release(t)
		return true
	}
	if game.Phase != domain.PhaseQuestionLive || game.CurrentQuestionIndex != t.questionIndex {
		log.WithField("phase", game.Phase).Debug("question no longer live, cancelling timer")
		a.release(t)
		return true
	}

	t.timeLeft--
	if t.timeLeft < 0 {
		t.timeLeft = 0
	}
	left := t.timeLeft
	_, err = a.docs.MutateGame(a.base, t.gameID, func(g *domain.Game) error {
		if g.Phase != domain.PhaseQuestionLive || g.CurrentQuestionIndex != t.questionIndex {
			return &domain.InvalidTransitionError{Op: "tick", From: g.Phase}
		}
		// Never publish a larger value than what is already shared.
		if g.TimeLeft != nil && *g.TimeLeft < left {
			return nil
		}
		now := a.now()
		g.TimeLeft = &left
		g.LastTimerUpdate = &now
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("timer tick write failed, cancelling timer")
		a.release(t)
		return true
	}

	if left > 0 {
		return false
	}

	a.release(t)
	a.mu.Lock()
	onExpire := a.onExpire
	a.mu.Unlock()
	log.Info("question timer expired")
	if onExpire != nil {
		onExpire(a.base, t.gameID, t.questionIndex)
	}
	return true
}

// release removes t from the registry unless a newer timer replaced it.
func (a *ActiveTimers) release(t *questionTimer) {
	a.mu.Lock()
	if cur, ok := a.timers[t.gameID]; ok && cur == t {
		delete(a.timers, t.gameID)
	}
	a.mu.Unlock()
	t.cancel()
}
