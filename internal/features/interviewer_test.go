package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candor/internal/aggregate"
	"candor/internal/model"
	"candor/internal/questionbank"
	"candor/internal/repo"
	"candor/internal/scoring"
	"candor/internal/session"
	"candor/internal/utils/sse"
)

type fakeStore struct {
	mu    sync.Mutex
	saved []repo.Submission
	errs  []error
}

func (f *fakeStore) SaveCandidate(ctx context.Context, sub repo.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	f.saved = append(f.saved, sub)
	return fmt.Sprintf("rec-%d", len(f.saved)), nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	b, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *memCache) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

type fakeRabbit struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
}

func (f *fakeRabbit) Publish(ctx context.Context, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, routingKey)
	f.body = append(f.body, body)
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return f.text, f.err
}

type shortQuestions struct{}

func (shortQuestions) Generate(skills []string, tier model.Tier, maxSkills, perSkillCount int) []model.Question {
	return []model.Question{
		{Index: 0, Skill: "go", Text: "What is a channel?", Category: model.CategoryTechnical, Tier: tier, TimeLimitSeconds: 1},
		{Index: 1, Skill: "go", Text: "What is a goroutine?", Category: model.CategoryTechnical, Tier: tier, TimeLimitSeconds: 60},
	}
}

func sessionDeps(t *testing.T) session.Deps {
	t.Helper()
	bank := questionbank.Default()
	scorer, err := scoring.New(scoring.DefaultWeights(), bank, nil, 0, nil)
	require.NoError(t, err)
	agg, err := aggregate.New(aggregate.DefaultPolicy())
	require.NoError(t, err)
	return session.Deps{Questions: bank, Scorer: scorer, Aggregator: agg}
}

func newInterviewer(t *testing.T, cfg Config, deps Deps) *Interviewer {
	t.Helper()
	if deps.Session.Scorer == nil {
		deps.Session = sessionDeps(t)
	}
	if cfg.Session.MaxSkills == 0 {
		cfg.Session = session.DefaultConfig()
	}
	iv := NewInterviewer(cfg, deps)
	t.Cleanup(iv.Shutdown)
	return iv
}

func profile(email string) session.SubmitProfile {
	return session.SubmitProfile{
		Name:       "Asha Rao",
		Email:      email,
		Phone:      "+91 98765 43210",
		Position:   "Backend Engineer",
		Experience: "1-3 years",
		Skills:     "python, mysql",
	}
}

// runToResults drives a registered session through every remaining question and prompt
func runToResults(t *testing.T, iv *Interviewer, id string) {
	t.Helper()
	ctx := context.Background()
	for {
		v, err := iv.Get(ctx, id)
		require.NoError(t, err)
		switch v.Stage {
		case session.StageQuestioning:
			_, err = iv.Handle(ctx, id, session.SubmitAnswer{
				Answer: "I use list comprehensions, generators and indexes with joins in production code.",
			})
		case session.StageSecondary:
			_, err = iv.Handle(ctx, id, session.SkipSecondary{})
		default:
			return
		}
		require.NoError(t, err)
	}
}

func TestInterviewFlowPersistsOnce(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	rb := &fakeRabbit{}
	pub := NewPublisher(rb, PublisherConfig{Workers: 1, QueueSize: 4}, zap.NewNop())
	pub.Start()
	iv := newInterviewer(t, Config{}, Deps{Store: store, Publisher: pub})

	v, err := iv.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StageRegistration, v.Stage)

	_, err = iv.Handle(ctx, v.ID, profile("asha@example.com"))
	require.NoError(t, err)
	_, err = iv.Handle(ctx, v.ID, session.SubmitIntroduction{Transcript: "I am a backend developer."})
	require.NoError(t, err)

	v, err = iv.Get(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, v.Question)
	require.NotNil(t, v.RemainingSeconds)
	assert.Equal(t, 0, v.CurrentIndex)

	runToResults(t, iv, v.ID)

	res, err := iv.Handle(ctx, v.ID, session.Finalize{})
	require.NoError(t, err)
	require.NotNil(t, res.Verdict)
	assert.True(t, res.Persisted)
	assert.Equal(t, "rec-1", res.RecordID)

	again, err := iv.Handle(ctx, v.ID, session.Finalize{})
	require.NoError(t, err)
	assert.Equal(t, res.Verdict, again.Verdict)

	res, err = iv.Handle(ctx, v.ID, session.Close{})
	require.NoError(t, err)
	assert.Equal(t, session.StageTerminal, res.Stage)
	assert.Equal(t, 1, store.count())

	sub := store.saved[0]
	assert.Equal(t, "asha@example.com", sub.Profile.Email)
	assert.Equal(t, model.TierIntermediate, sub.Profile.Tier)
	assert.Len(t, sub.Secondary, len(session.DefaultSecondaryPrompts))
	assert.Equal(t, -5, sub.Verdict.SecondaryAdjustment)

	report, err := iv.Report(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Verdict, report.Verdict)

	pub.Stop()
	require.Len(t, rb.keys, 1)
	assert.Equal(t, RoutingKeyVerdictFinalized, rb.keys[0])
	var ev VerdictEvent
	require.NoError(t, json.Unmarshal(rb.body[0], &ev))
	assert.Equal(t, v.ID, ev.SessionID)
	assert.Equal(t, "rec-1", ev.RecordID)
}

func TestDuplicateCandidateKeepsVerdict(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{errs: []error{fmt.Errorf("%w: x", repo.ErrDuplicateCandidate)}}
	iv := newInterviewer(t, Config{}, Deps{Store: store})

	v, _ := iv.Create(ctx)
	_, err := iv.Handle(ctx, v.ID, profile("dup@example.com"))
	require.NoError(t, err)
	_, err = iv.Handle(ctx, v.ID, session.SkipIntroduction{})
	require.NoError(t, err)
	runToResults(t, iv, v.ID)

	res, err := iv.Handle(ctx, v.ID, session.Finalize{})
	assert.True(t, errors.Is(err, repo.ErrDuplicateCandidate))
	require.NotNil(t, res.Verdict)
	assert.False(t, res.Persisted)

	// no retry for a duplicate
	_, err = iv.Handle(ctx, v.ID, session.Finalize{})
	assert.True(t, errors.Is(err, repo.ErrDuplicateCandidate))
	assert.Equal(t, 0, store.count())
}

func TestStoreFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{errs: []error{errors.New("connection reset")}}
	iv := newInterviewer(t, Config{}, Deps{Store: store})

	v, _ := iv.Create(ctx)
	_, err := iv.Handle(ctx, v.ID, profile("retry@example.com"))
	require.NoError(t, err)
	_, err = iv.Handle(ctx, v.ID, session.SkipIntroduction{})
	require.NoError(t, err)
	runToResults(t, iv, v.ID)

	res, err := iv.Handle(ctx, v.ID, session.Finalize{})
	require.Error(t, err)
	require.NotNil(t, res.Verdict)

	res, err = iv.Handle(ctx, v.ID, session.Finalize{})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, 1, store.count())
}

func TestUnknownSessionAndStageErrors(t *testing.T) {
	ctx := context.Background()
	iv := newInterviewer(t, Config{}, Deps{})

	_, err := iv.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = iv.Handle(ctx, "missing", session.Finalize{})
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	v, _ := iv.Create(ctx)
	_, err = iv.Handle(ctx, v.ID, session.SubmitAnswer{Answer: "too early"})
	var stageErr *session.StageError
	assert.ErrorAs(t, err, &stageErr)

	_, err = iv.Report(ctx, v.ID)
	assert.True(t, errors.Is(err, ErrNotFinalized))
}

func TestRestoreFromCache(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	first := newInterviewer(t, Config{}, Deps{Cache: cache})

	v, _ := first.Create(ctx)
	_, err := first.Handle(ctx, v.ID, profile("cache@example.com"))
	require.NoError(t, err)

	second := newInterviewer(t, Config{}, Deps{Cache: cache})
	got, err := second.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StageIntroduction, got.Stage)
	assert.Equal(t, "cache@example.com", got.Profile.Email)
	assert.Equal(t, 0, v.TotalQuestions)
	assert.NotZero(t, got.TotalQuestions)

	require.NoError(t, second.Delete(ctx, v.ID))
	_, err = second.Get(ctx, v.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	found, _ := cache.Get(ctx, snapshotKey(v.ID), &cachedSession{})
	assert.False(t, found)
}

func TestRestoredVerdictRetriesFailedSave(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	failing := &fakeStore{errs: []error{errors.New("connection reset")}}
	first := newInterviewer(t, Config{}, Deps{Cache: cache, Store: failing})

	v, _ := first.Create(ctx)
	_, err := first.Handle(ctx, v.ID, profile("restart@example.com"))
	require.NoError(t, err)
	_, err = first.Handle(ctx, v.ID, session.SkipIntroduction{})
	require.NoError(t, err)
	runToResults(t, first, v.ID)

	res, err := first.Handle(ctx, v.ID, session.Finalize{})
	require.Error(t, err)
	assert.False(t, res.Persisted)

	store := &fakeStore{}
	second := newInterviewer(t, Config{}, Deps{Cache: cache, Store: store})
	res, err = second.Handle(ctx, v.ID, session.Finalize{})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, "rec-1", res.RecordID)
	assert.Equal(t, 1, store.count())

	// the saved state travels too: a third process does not save again
	third := newInterviewer(t, Config{}, Deps{Cache: cache, Store: store})
	res, err = third.Handle(ctx, v.ID, session.Finalize{})
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, "rec-1", res.RecordID)
	assert.Equal(t, 1, store.count())
}

func TestRestoredDuplicateStaysReported(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	first := newInterviewer(t, Config{}, Deps{Cache: cache, Store: &fakeStore{errs: []error{repo.ErrDuplicateCandidate}}})

	v, _ := first.Create(ctx)
	_, err := first.Handle(ctx, v.ID, profile("dup@example.com"))
	require.NoError(t, err)
	_, err = first.Handle(ctx, v.ID, session.SkipIntroduction{})
	require.NoError(t, err)
	runToResults(t, first, v.ID)
	_, err = first.Handle(ctx, v.ID, session.Finalize{})
	require.ErrorIs(t, err, repo.ErrDuplicateCandidate)

	store := &fakeStore{}
	second := newInterviewer(t, Config{}, Deps{Cache: cache, Store: store})
	res, err := second.Handle(ctx, v.ID, session.Finalize{})
	assert.ErrorIs(t, err, repo.ErrDuplicateCandidate)
	assert.NotNil(t, res.Verdict)
	assert.Equal(t, 0, store.count())
}

// lookupOnDelete issues a lookup while the snapshot is being deleted
type lookupOnDelete struct {
	*memCache
	iv     *Interviewer
	result chan error
}

func (c *lookupOnDelete) Delete(ctx context.Context, key string) (bool, error) {
	go func() {
		_, err := c.iv.Get(context.Background(), strings.TrimPrefix(key, "session:"))
		c.result <- err
	}()
	select {
	case err := <-c.result:
		c.result <- err
	case <-time.After(50 * time.Millisecond):
	}
	return c.memCache.Delete(ctx, key)
}

func TestDeleteDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	cache := &lookupOnDelete{memCache: newMemCache(), result: make(chan error, 1)}
	iv := newInterviewer(t, Config{}, Deps{Cache: cache})
	cache.iv = iv

	v, _ := iv.Create(ctx)
	_, err := iv.Handle(ctx, v.ID, profile("gone@example.com"))
	require.NoError(t, err)
	require.NoError(t, iv.Delete(ctx, v.ID))

	select {
	case err := <-cache.result:
		assert.ErrorIs(t, err, ErrSessionNotFound)
	case <-time.After(2 * time.Second):
		t.Fatal("lookup did not return")
	}
	_, err = iv.Get(ctx, v.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAutoSkipOnTimeout(t *testing.T) {
	ctx := context.Background()
	deps := sessionDeps(t)
	deps.Questions = shortQuestions{}
	iv := newInterviewer(t, Config{AutoSkip: true}, Deps{Session: deps})

	v, _ := iv.Create(ctx)
	events := make(chan sse.Event, 8)
	iv.Hub().Register(v.ID, events)

	_, err := iv.Handle(ctx, v.ID, profile("timer@example.com"))
	require.NoError(t, err)
	_, err = iv.Handle(ctx, v.ID, session.SkipIntroduction{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := iv.Get(ctx, v.ID)
		return err == nil && got.CurrentIndex == 1
	}, 3*time.Second, 20*time.Millisecond)

	got, err := iv.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.True(t, got.Results[0].Skipped)
	assert.Equal(t, 1, got.Question.Index)

	// a late expiry for the first question is rejected
	expected := 0
	_, err = iv.Handle(ctx, v.ID, session.SkipQuestion{Expected: &expected})
	assert.True(t, errors.Is(err, session.ErrStaleQuestion))

	names := map[string]bool{}
	for len(events) > 0 {
		names[(<-events).Name] = true
	}
	assert.True(t, names[EventQuestionExpired])
	assert.True(t, names[EventStageChanged])
}

func TestTimeoutWithoutAutoSkipOnlyNotifies(t *testing.T) {
	ctx := context.Background()
	deps := sessionDeps(t)
	deps.Questions = shortQuestions{}
	iv := newInterviewer(t, Config{}, Deps{Session: deps})

	v, _ := iv.Create(ctx)
	events := make(chan sse.Event, 8)
	iv.Hub().Register(v.ID, events)
	_, err := iv.Handle(ctx, v.ID, profile("cosmetic@example.com"))
	require.NoError(t, err)
	_, err = iv.Handle(ctx, v.ID, session.SkipIntroduction{})
	require.NoError(t, err)

	deadline := time.After(3 * time.Second)
	for expired := false; !expired; {
		select {
		case ev := <-events:
			expired = ev.Name == EventQuestionExpired
		case <-deadline:
			t.Fatal("no expiry event")
		}
	}

	got, err := iv.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentIndex)
}

func TestTranscribeFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()

	iv := newInterviewer(t, Config{}, Deps{})
	assert.Equal(t, "", iv.Transcribe(ctx, "s", []byte("x"), "a.wav"))

	iv = newInterviewer(t, Config{TranscribeTimeout: time.Second}, Deps{Transcriber: fakeTranscriber{err: errors.New("asr down")}})
	assert.Equal(t, "", iv.Transcribe(ctx, "s", []byte("x"), "a.wav"))

	iv = newInterviewer(t, Config{}, Deps{Transcriber: fakeTranscriber{text: "hello there"}})
	assert.Equal(t, "hello there", iv.Transcribe(ctx, "s", []byte("x"), "a.wav"))
}

func TestPublisherDropsAfterStop(t *testing.T) {
	rb := &fakeRabbit{}
	pub := NewPublisher(rb, PublisherConfig{Workers: 2, QueueSize: 1}, zap.NewNop())
	pub.Start()
	assert.True(t, pub.Enqueue(VerdictEvent{SessionID: "a"}))
	pub.Stop()
	assert.False(t, pub.Enqueue(VerdictEvent{SessionID: "b"}))

	m := pub.GetMetrics()
	assert.Equal(t, int64(1), m["total_jobs_enqueued"])
	assert.Equal(t, int64(1), m["total_jobs_processed"])
	assert.Equal(t, int64(1), m["total_jobs_dropped"])
}
