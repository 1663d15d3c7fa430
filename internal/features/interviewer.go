package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"candor/internal/model"
	"candor/internal/repo"
	"candor/internal/session"
	"candor/internal/utils/redis"
	"candor/internal/utils/sse"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotFinalized    = errors.New("session has no verdict yet")
)

const (
	EventStageChanged     = "stage.changed"
	EventQuestionExpired  = "question.expired"
	EventVerdictFinalized = "verdict.finalized"
)

// Transcriber turns recorded audio into answer text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Store persists a finished interview
type Store interface {
	SaveCandidate(ctx context.Context, sub repo.Submission) (string, error)
}

type Config struct {
	Session           session.Config
	SnapshotTTL       time.Duration
	AutoSkip          bool
	TimerGrace        time.Duration
	TranscribeTimeout time.Duration
}

type Deps struct {
	Session     session.Deps
	Store       Store
	Transcriber Transcriber
	Cache       redis.Redis
	Publisher   *Publisher
	Hub         *sse.Hub
	Logger      *zap.Logger
}

// Result is what a command produced, plus the persistence status of the verdict
type Result struct {
	session.Outcome
	RecordID  string `json:"record_id,omitempty"`
	Persisted bool   `json:"persisted"`
}

// View is the externally visible state of a session
type View struct {
	ID               string                    `json:"id"`
	Stage            session.Stage             `json:"stage"`
	StartedAt        time.Time                 `json:"started_at"`
	Profile          *model.CandidateProfile   `json:"profile,omitempty"`
	Introduction     *model.IntroductionResult `json:"introduction,omitempty"`
	TotalQuestions   int                       `json:"total_questions"`
	CurrentIndex     int                       `json:"current_index"`
	Question         *model.Question           `json:"question,omitempty"`
	RemainingSeconds *int                      `json:"remaining_seconds,omitempty"`
	Prompt           string                    `json:"prompt,omitempty"`
	Results          []model.AnswerResult      `json:"results"`
	Secondary        []model.SecondaryResult   `json:"secondary"`
	Verdict          *model.FinalVerdict       `json:"verdict,omitempty"`
	RecordID         string                    `json:"record_id,omitempty"`
}

type entry struct {
	mu         sync.Mutex
	s          *session.Session
	recordID   string
	persisted  bool
	persistErr error
	gone       bool
}

// Interviewer owns the live sessions and serializes the commands of each one
type Interviewer struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	timers *QuestionTimerManager

	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewInterviewer(cfg Config, deps Deps) *Interviewer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = redis.Dummy()
	}
	if deps.Hub == nil {
		deps.Hub = sse.NewHub()
	}
	if deps.Session.Now == nil {
		deps.Session.Now = time.Now
	}
	return &Interviewer{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		timers:   NewQuestionTimerManager(deps.Logger),
		sessions: make(map[string]*entry),
	}
}

func (i *Interviewer) Hub() *sse.Hub {
	return i.deps.Hub
}

func snapshotKey(id string) string {
	return "session:" + id
}

// Create starts a new session in the registration stage
func (i *Interviewer) Create(ctx context.Context) (View, error) {
	id := uuid.NewString()
	e := &entry{s: session.New(id, i.cfg.Session, i.deps.Session)}

	i.mu.Lock()
	i.sessions[id] = e
	i.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	i.saveSnapshot(ctx, e)
	i.logger.Info("Created session", zap.String("sessionId", id))
	return i.view(e), nil
}

// Get returns the current view of a session
func (i *Interviewer) Get(ctx context.Context, id string) (View, error) {
	e, err := i.lock(ctx, id)
	if err != nil {
		return View{}, err
	}
	defer e.mu.Unlock()
	return i.view(e), nil
}

// Handle applies cmd to the session. A verdict is persisted and announced the first time it
// appears; a duplicate candidate is reported with repo.ErrDuplicateCandidate alongside the
// still valid result.
func (i *Interviewer) Handle(ctx context.Context, id string, cmd session.Command) (Result, error) {
	e, err := i.lock(ctx, id)
	if err != nil {
		return Result{}, err
	}
	defer e.mu.Unlock()

	before := e.s.Stage()
	out, err := e.s.Handle(ctx, cmd)
	if err != nil {
		if errors.Is(err, session.ErrStaleQuestion) {
			i.logger.Debug("Rejected stale command", zap.String("sessionId", id), zap.String("command", session.CommandName(cmd)))
		}
		return Result{Outcome: out}, err
	}

	if _, ok := cmd.(session.Restart); ok {
		e.recordID, e.persisted, e.persistErr = "", false, nil
	}

	i.armTimer(e)
	if out.Verdict != nil && !e.persisted {
		i.persist(ctx, e, *out.Verdict)
	}
	i.saveSnapshot(ctx, e)

	if out.Stage != before {
		i.deps.Hub.Send(id, sse.Event{Name: EventStageChanged, Data: i.view(e)})
	}

	res := Result{Outcome: out, RecordID: e.recordID, Persisted: e.persisted && e.persistErr == nil}
	if out.Verdict != nil && e.persistErr != nil {
		return res, e.persistErr
	}
	return res, nil
}

// Transcribe converts audio to text. Any failure yields an empty transcript.
func (i *Interviewer) Transcribe(ctx context.Context, id string, audio []byte, filename string) string {
	if i.deps.Transcriber == nil {
		i.logger.Warn("No transcriber configured", zap.String("sessionId", id))
		return ""
	}
	if i.cfg.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.TranscribeTimeout)
		defer cancel()
	}
	text, err := i.deps.Transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		i.logger.Warn("Transcription failed, using empty answer",
			zap.String("sessionId", id),
			zap.String("filename", filename),
			zap.Error(err))
		return ""
	}
	return text
}

// Report returns the finished interview for export
func (i *Interviewer) Report(ctx context.Context, id string) (repo.Submission, error) {
	e, err := i.lock(ctx, id)
	if err != nil {
		return repo.Submission{}, err
	}
	defer e.mu.Unlock()

	v := e.s.Verdict()
	if v == nil {
		return repo.Submission{}, ErrNotFinalized
	}
	return submission(e.s, *v), nil
}

// Delete drops the session from memory and from the cache
func (i *Interviewer) Delete(ctx context.Context, id string) error {
	e, err := i.lock(ctx, id)
	if err != nil {
		return err
	}
	e.gone = true
	i.timers.CancelSession(id)
	// the snapshot goes first so a concurrent lookup cannot restore it
	if _, err := i.deps.Cache.Delete(ctx, snapshotKey(id)); err != nil {
		i.logger.Warn("Failed to delete session snapshot", zap.String("sessionId", id), zap.Error(err))
	}

	i.mu.Lock()
	delete(i.sessions, id)
	i.mu.Unlock()
	e.mu.Unlock()

	i.logger.Info("Deleted session", zap.String("sessionId", id))
	return nil
}

// Metrics returns counters for the metrics endpoint
func (i *Interviewer) Metrics() map[string]any {
	i.mu.RLock()
	live := len(i.sessions)
	i.mu.RUnlock()

	m := map[string]any{"live_sessions": live}
	if i.deps.Publisher != nil {
		m["publisher"] = i.deps.Publisher.GetMetrics()
	}
	return m
}

func (i *Interviewer) Shutdown() {
	i.timers.Shutdown()
	if i.deps.Publisher != nil {
		i.deps.Publisher.Stop()
	}
}

// lock returns the locked entry for id, restoring it from the cache when needed
func (i *Interviewer) lock(ctx context.Context, id string) (*entry, error) {
	i.mu.RLock()
	e, ok := i.sessions[id]
	i.mu.RUnlock()

	if !ok {
		restored, err := i.restore(ctx, id)
		if err != nil {
			return nil, err
		}
		i.mu.Lock()
		if e, ok = i.sessions[id]; !ok {
			e = restored
			i.sessions[id] = e
		}
		i.mu.Unlock()
	}

	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// cachedSession is the snapshot plus the persistence state of its verdict
type cachedSession struct {
	Session   session.Snapshot `json:"session"`
	RecordID  string           `json:"record_id,omitempty"`
	Persisted bool             `json:"persisted"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

func (i *Interviewer) restore(ctx context.Context, id string) (*entry, error) {
	var cached cachedSession
	found, err := i.deps.Cache.Get(ctx, snapshotKey(id), &cached)
	if err != nil {
		i.logger.Warn("Failed to read session snapshot", zap.String("sessionId", id), zap.Error(err))
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s, err := session.Restore(cached.Session, i.cfg.Session, i.deps.Session)
	if err != nil {
		i.logger.Error("Discarding corrupt session snapshot", zap.String("sessionId", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	i.logger.Info("Restored session from snapshot",
		zap.String("sessionId", id),
		zap.Stringer("stage", s.Stage()),
		zap.Bool("persisted", cached.Persisted))

	e := &entry{s: s, recordID: cached.RecordID}
	if s.Verdict() != nil {
		e.persisted = cached.Persisted
		if cached.Duplicate {
			e.persistErr = repo.ErrDuplicateCandidate
		}
	}
	i.armTimer(e)
	return e, nil
}

func (i *Interviewer) saveSnapshot(ctx context.Context, e *entry) {
	cached := cachedSession{
		Session:   e.s.Snapshot(),
		RecordID:  e.recordID,
		Persisted: e.persisted,
		Duplicate: errors.Is(e.persistErr, repo.ErrDuplicateCandidate),
	}
	if err := i.deps.Cache.Set(ctx, snapshotKey(e.s.ID()), cached, i.cfg.SnapshotTTL); err != nil {
		i.logger.Warn("Failed to save session snapshot", zap.String("sessionId", e.s.ID()), zap.Error(err))
	}
}

// armTimer keeps exactly one timer running for the current question
func (i *Interviewer) armTimer(e *entry) {
	id := e.s.ID()
	i.timers.CancelSession(id)

	q, ok := e.s.CurrentQuestion()
	if !ok || q.TimeLimitSeconds <= 0 {
		return
	}
	limit := time.Duration(q.TimeLimitSeconds)*time.Second + i.cfg.TimerGrace
	i.timers.Start(id, q.Index, limit, i.onTimeout)
}

func (i *Interviewer) onTimeout(id string, index int) {
	i.deps.Hub.Send(id, sse.Event{Name: EventQuestionExpired, Data: map[string]int{"question_index": index}})
	if !i.cfg.AutoSkip {
		return
	}

	expected := index
	if _, err := i.Handle(context.Background(), id, session.SkipQuestion{Expected: &expected}); err != nil {
		var stageErr *session.StageError
		if errors.Is(err, session.ErrStaleQuestion) || errors.As(err, &stageErr) || errors.Is(err, ErrSessionNotFound) {
			return
		}
		i.logger.Error("Failed to auto-skip question", zap.String("sessionId", id), zap.Int("questionIndex", index), zap.Error(err))
	}
}

func (i *Interviewer) persist(ctx context.Context, e *entry, v model.FinalVerdict) {
	id := e.s.ID()
	if i.deps.Store == nil {
		e.persisted = true
		return
	}

	recordID, err := i.deps.Store.SaveCandidate(ctx, submission(e.s, v))
	switch {
	case errors.Is(err, repo.ErrDuplicateCandidate):
		// the verdict stays valid; a retry would fail the same way
		e.persisted, e.persistErr = true, err
		i.logger.Warn("Candidate already recorded", zap.String("sessionId", id), zap.Error(err))
		return
	case err != nil:
		e.persistErr = fmt.Errorf("failed to save candidate: %w", err)
		i.logger.Error("Failed to save candidate", zap.String("sessionId", id), zap.Error(err))
		return
	}

	e.recordID, e.persisted, e.persistErr = recordID, true, nil
	i.logger.Info("Saved candidate",
		zap.String("sessionId", id),
		zap.String("recordId", recordID),
		zap.Int("overallScore", v.OverallScore),
		zap.String("verdict", string(v.Verdict)))

	p := e.s.Profile()
	ev := VerdictEvent{
		SessionID:    id,
		RecordID:     recordID,
		Name:         p.Name,
		Email:        p.Email,
		Position:     p.Position,
		OverallScore: v.OverallScore,
		Verdict:      v.Verdict,
		Quality:      v.Quality,
		DecidedAt:    v.DecidedAt,
	}
	if i.deps.Publisher != nil {
		i.deps.Publisher.Enqueue(ev)
	}
	i.deps.Hub.Send(id, sse.Event{Name: EventVerdictFinalized, Data: ev})
}

func (i *Interviewer) view(e *entry) View {
	s := e.s
	v := View{
		ID:             s.ID(),
		Stage:          s.Stage(),
		StartedAt:      s.StartedAt(),
		Profile:        s.Profile(),
		Introduction:   s.Introduction(),
		TotalQuestions: len(s.Questions()),
		CurrentIndex:   s.CurrentIndex(),
		Results:        s.Results(),
		Secondary:      s.Secondary(),
		Verdict:        s.Verdict(),
		RecordID:       e.recordID,
	}
	if q, ok := s.CurrentQuestion(); ok {
		v.Question = &q
		if left, ok := i.timers.Remaining(s.ID(), q.Index); ok {
			secs := int(left.Round(time.Second) / time.Second)
			v.RemainingSeconds = &secs
		}
	}
	if prompt, ok := s.CurrentPrompt(); ok {
		v.Prompt = prompt
	}
	return v
}

func submission(s *session.Session, v model.FinalVerdict) repo.Submission {
	sub := repo.Submission{
		Results:   s.Results(),
		Secondary: s.Secondary(),
		Verdict:   v,
	}
	if p := s.Profile(); p != nil {
		sub.Profile = *p
	}
	if in := s.Introduction(); in != nil {
		sub.Introduction = *in
	}
	return sub
}
