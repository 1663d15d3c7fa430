package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candor/internal/model"
	"candor/internal/questionbank"
)

type fakeEvaluator struct {
	reply string
	err   error
	calls int
}

func (f *fakeEvaluator) ScoreText(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type blockingEvaluator struct{}

func (blockingEvaluator) ScoreText(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newScorer(t *testing.T, w Weights, ev Evaluator) *Scorer {
	t.Helper()
	s, err := New(w, questionbank.Default(), ev, 50*time.Millisecond, nil)
	require.NoError(t, err)
	return s
}

func pythonQuestion(tier model.Tier) model.Question {
	return model.Question{
		Skill:    "python",
		Text:     "Explain how decorators work in Python and give an example.",
		Category: model.CategoryTechnical,
		Tier:     tier,
	}
}

func words(n int, seed string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = seed
	}
	return strings.Join(parts, " ")
}

func ptr(s string) *string { return &s }

func TestEvaluateFloor(t *testing.T) {
	s := newScorer(t, DefaultWeights(), &fakeEvaluator{reply: "Score: 100 | Feedback: perfect"})
	q := pythonQuestion(model.TierIntermediate)

	tests := []struct {
		name   string
		answer *string
	}{
		{"skipped", nil},
		{"empty", ptr("")},
		{"whitespace", ptr("   \n\t ")},
		{"too short", ptr("  yes ok  ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := s.Evaluate(context.Background(), q, tt.answer)
			assert.Equal(t, 0, ev.Score)
			assert.Equal(t, model.QualityBeginner, ev.Quality)
			assert.NotEmpty(t, ev.Feedback)
			assert.Nil(t, ev.Signals.ExternalScore)
		})
	}
}

func TestEvaluateRange(t *testing.T) {
	answers := []string{
		"I have used python for a while now.",
		words(200, "decorator function class generator metaclass asyncio"),
		"Explain decorators work python give example " + words(120, "module"),
		words(40, "um"),
	}
	replies := []string{"Score: 100 | Feedback: ok", "Score: 0 | Feedback: bad", "nonsense"}

	for _, tier := range model.Tiers {
		for _, reply := range replies {
			s := newScorer(t, DefaultWeights(), &fakeEvaluator{reply: reply})
			for _, a := range answers {
				ev := s.Evaluate(context.Background(), pythonQuestion(tier), ptr(a))
				assert.GreaterOrEqual(t, ev.Score, 0)
				assert.LessOrEqual(t, ev.Score, 100)
			}
		}
	}
}

func TestLengthSignalMonotonic(t *testing.T) {
	s := newScorer(t, DefaultWeights(), nil)
	q := pythonQuestion(model.TierIntermediate)

	prev := -1
	for _, n := range []int{5, 30, 80, 150} {
		ev := s.Evaluate(context.Background(), q, ptr(words(n, "word")))
		assert.Equal(t, 0, ev.Signals.KeywordPoints)
		assert.Equal(t, 0, ev.Signals.RelevancePoints)
		assert.GreaterOrEqual(t, ev.Signals.LengthPoints, prev, "words=%d", n)
		prev = ev.Signals.LengthPoints
	}
	assert.Equal(t, DefaultWeights().LengthMax, prev)
}

func TestEvaluateIdempotent(t *testing.T) {
	ev := &fakeEvaluator{reply: "Score: 72 | Feedback: Clear explanation."}
	s := newScorer(t, DefaultWeights(), ev)
	q := pythonQuestion(model.TierExperienced)
	answer := "A decorator is a function that wraps another function to add behaviour, for example logging."

	first := s.Evaluate(context.Background(), q, ptr(answer))
	second := s.Evaluate(context.Background(), q, ptr(answer))

	assert.Equal(t, first, second)
	assert.Equal(t, 2, ev.calls)
}

func TestLongKeywordAnswerBeatsShortOffTopic(t *testing.T) {
	s := newScorer(t, DefaultWeights(), nil)
	q := pythonQuestion(model.TierIntermediate)

	long := "A decorator wraps a function, and a class based decorator keeps a variable between calls, " +
		"for example to cache a loop result. " + words(130, "word")
	require.GreaterOrEqual(t, model.WordCount(long), 150)
	short := "I am not really sure about that topic at all"
	require.Equal(t, 10, model.WordCount(short))

	longEv := s.Evaluate(context.Background(), q, ptr(long))
	shortEv := s.Evaluate(context.Background(), q, ptr(short))

	assert.GreaterOrEqual(t, longEv.Signals.BasicHits, 3)
	assert.GreaterOrEqual(t, longEv.Signals.AdvancedHits, 2)
	assert.Equal(t, 0, shortEv.Signals.BasicHits+shortEv.Signals.AdvancedHits+shortEv.Signals.ExpertHits)
	assert.Greater(t, longEv.Score, shortEv.Score)
}

func TestFresherCap(t *testing.T) {
	w := DefaultWeights()
	w.ExternalWeight = 1
	s := newScorer(t, w, &fakeEvaluator{reply: "Score: 100 | Feedback: Excellent."})

	ev := s.Evaluate(context.Background(), pythonQuestion(model.TierFresher), ptr("A decorator wraps a function to extend it."))

	assert.Equal(t, w.FresherCap, ev.Score)
	assert.Equal(t, w.FresherCap-100, ev.Signals.Adjustment)
	assert.Less(t, ev.Score, w.Quality.Proficiency)
	assert.NotEqual(t, model.QualityProficiency, ev.Quality)
}

func TestNoExpertPenalty(t *testing.T) {
	w := DefaultWeights()
	w.ExternalWeight = 1
	answer := "A decorator wraps a function to extend it."

	tests := []struct {
		tier model.Tier
		want int
	}{
		{model.TierIntermediate, 70},
		{model.TierExperienced, 60},
		{model.TierSenior, 55},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			s := newScorer(t, w, &fakeEvaluator{reply: "Score: 70 | Feedback: Fine."})
			ev := s.Evaluate(context.Background(), pythonQuestion(tt.tier), ptr(answer))
			assert.Equal(t, tt.want, ev.Score)
			assert.Equal(t, tt.want-70, ev.Signals.Adjustment)
		})
	}

	// expert vocabulary lifts the penalty
	s := newScorer(t, w, &fakeEvaluator{reply: "Score: 70 | Feedback: Fine."})
	ev := s.Evaluate(context.Background(), pythonQuestion(model.TierSenior), ptr(answer+" It runs under the GIL with asyncio."))
	assert.Equal(t, 70, ev.Score)
}

func TestExternalBlend(t *testing.T) {
	q := pythonQuestion(model.TierIntermediate)
	answer := "A decorator wraps a function and returns a new function with extra behaviour."

	local := newScorer(t, DefaultWeights(), nil).Evaluate(context.Background(), q, ptr(answer))
	blended := newScorer(t, DefaultWeights(), &fakeEvaluator{reply: "Score: 90 | Feedback: Solid."}).
		Evaluate(context.Background(), q, ptr(answer))

	require.NotNil(t, blended.Signals.ExternalScore)
	assert.Equal(t, 90, *blended.Signals.ExternalScore)
	want := int(0.6*90 + 0.4*float64(local.Score) + 0.5)
	assert.Equal(t, want, blended.Score)
	assert.Contains(t, blended.Feedback, "Solid.")
}

func TestExternalFallback(t *testing.T) {
	q := pythonQuestion(model.TierIntermediate)
	answer := "A decorator wraps a function and returns a new function with extra behaviour."
	local := newScorer(t, DefaultWeights(), nil).Evaluate(context.Background(), q, ptr(answer))

	tests := []struct {
		name string
		ev   Evaluator
	}{
		{"error", &fakeEvaluator{err: errors.New("connection refused")}},
		{"unparsable", &fakeEvaluator{reply: "I think this answer is pretty good."}},
		{"out of range", &fakeEvaluator{reply: "Score: 150 | Feedback: wow"}},
		{"timeout", blockingEvaluator{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newScorer(t, DefaultWeights(), tt.ev).Evaluate(context.Background(), q, ptr(answer))
			assert.Equal(t, local, got)
		})
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		reply    string
		score    int
		feedback string
		wantErr  bool
	}{
		{"Score: 78 | Feedback: Good coverage of basics.", 78, "Good coverage of basics.", false},
		{"score=40|feedback=Too vague", 40, "Too vague", false},
		{"Here you go.\nScore: 55/100 | Feedback: Okay.\n", 55, "Okay.", false},
		{"Score: 90", 90, "", false},
		{"Score: -3 | Feedback: no", 0, "", true},
		{"Score: 101 | Feedback: no", 0, "", true},
		{"Great answer!", 0, "", true},
		{"", 0, "", true},
	}
	for _, tt := range tests {
		score, feedback, err := ParseReply(tt.reply)
		if tt.wantErr {
			assert.Error(t, err, "reply %q", tt.reply)
			continue
		}
		require.NoError(t, err, "reply %q", tt.reply)
		assert.Equal(t, tt.score, score)
		assert.Equal(t, tt.feedback, feedback)
	}
}

func TestQualityFor(t *testing.T) {
	w := DefaultWeights()
	tests := map[int]model.SpeakingQuality{
		0:   model.QualityBeginner,
		39:  model.QualityBeginner,
		40:  model.QualityIntermediate,
		59:  model.QualityIntermediate,
		60:  model.QualityAdvanced,
		75:  model.QualityFluent,
		84:  model.QualityFluent,
		85:  model.QualityProficiency,
		100: model.QualityProficiency,
	}
	for score, want := range tests {
		assert.Equal(t, want, w.QualityFor(score), "score %d", score)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.Quality.Fluent = 90
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.KeywordMax = 80
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.FresherCap = w.Quality.Proficiency
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.NoExpertPenalty[model.TierSenior] = -5
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.ExternalWeight = 1.5
	_, err := New(w, questionbank.Default(), nil, 0, nil)
	assert.Error(t, err)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0, Confidence("   "))

	clean := "I would describe myself as a calm and organised engineer who enjoys working with people."
	filled := "Um I would uh describe myself as like a calm and you know organised engineer um."
	assert.Greater(t, Confidence(clean), Confidence(filled))

	for _, s := range []string{"ok", words(500, "fine"), words(200, "um")} {
		c := Confidence(s)
		assert.GreaterOrEqual(t, c, 0)
		assert.LessOrEqual(t, c, 100)
	}
}
