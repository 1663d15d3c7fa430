package features

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QuestionTimer tracks the answer window of one question
type QuestionTimer struct {
	SessionID     string
	QuestionIndex int
	StartTime     time.Time
	Limit         time.Duration
	CancelFunc    context.CancelFunc
	Done          chan struct{}
}

// QuestionTimerManager runs one timer per (session, question)
type QuestionTimerManager struct {
	timers sync.Map // key: "sessionID:questionIndex", value: *QuestionTimer
	logger *zap.Logger
}

func NewQuestionTimerManager(logger *zap.Logger) *QuestionTimerManager {
	return &QuestionTimerManager{logger: logger}
}

func timerKey(sessionID string, questionIndex int) string {
	return fmt.Sprintf("%s:%d", sessionID, questionIndex)
}

// Start replaces any timer for the question. onTimeout runs on the timer goroutine after
// the timer has been removed, so it may start or cancel timers itself.
func (qtm *QuestionTimerManager) Start(sessionID string, questionIndex int, limit time.Duration, onTimeout func(string, int)) {
	key := timerKey(sessionID, questionIndex)
	qtm.cancel(key)

	ctx, cancel := context.WithCancel(context.Background())
	timer := &QuestionTimer{
		SessionID:     sessionID,
		QuestionIndex: questionIndex,
		StartTime:     time.Now(),
		Limit:         limit,
		CancelFunc:    cancel,
		Done:          make(chan struct{}),
	}
	qtm.timers.Store(key, timer)

	go qtm.run(ctx, key, timer, onTimeout)
}

func (qtm *QuestionTimerManager) cancel(key string) bool {
	val, ok := qtm.timers.LoadAndDelete(key)
	if !ok {
		return false
	}
	timer := val.(*QuestionTimer)
	timer.CancelFunc()
	select {
	case <-timer.Done:
		qtm.logger.Debug("Timer cancelled successfully", zap.String("timerKey", key))
	case <-time.After(100 * time.Millisecond):
		qtm.logger.Warn("Timer cancellation timeout", zap.String("timerKey", key))
	}
	return true
}

func (qtm *QuestionTimerManager) run(ctx context.Context, key string, timer *QuestionTimer, onTimeout func(string, int)) {
	defer close(timer.Done)

	t := time.NewTimer(timer.Limit)
	defer t.Stop()

	select {
	case <-t.C:
		// a concurrent cancel wins if it removed the entry first
		if !qtm.timers.CompareAndDelete(key, timer) {
			return
		}
		qtm.logger.Info("Question timeout reached",
			zap.String("sessionId", timer.SessionID),
			zap.Int("questionIndex", timer.QuestionIndex))
		onTimeout(timer.SessionID, timer.QuestionIndex)
	case <-ctx.Done():
	}
}

// Remaining returns the time left on a running timer, or false when none runs
func (qtm *QuestionTimerManager) Remaining(sessionID string, questionIndex int) (time.Duration, bool) {
	val, ok := qtm.timers.Load(timerKey(sessionID, questionIndex))
	if !ok {
		return 0, false
	}
	timer := val.(*QuestionTimer)
	remaining := timer.Limit - time.Since(timer.StartTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CancelSession stops every timer of a session
func (qtm *QuestionTimerManager) CancelSession(sessionID string) {
	qtm.timers.Range(func(key, value any) bool {
		if timer := value.(*QuestionTimer); timer.SessionID == sessionID {
			qtm.cancel(key.(string))
		}
		return true
	})
}

func (qtm *QuestionTimerManager) Shutdown() {
	qtm.logger.Info("Shutting down question timer manager")
	qtm.timers.Range(func(key, value any) bool {
		qtm.timers.Delete(key)
		value.(*QuestionTimer).CancelFunc()
		return true
	})
}
