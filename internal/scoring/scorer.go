package scoring

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"candor/internal/model"
	"candor/internal/questionbank"
)

// Evaluator is an optional external grader. The reply is expected to look like
// "Score: <int> | Feedback: <text>".
type Evaluator interface {
	ScoreText(ctx context.Context, prompt string) (string, error)
}

// KeywordSource supplies the vocabulary for a skill tag
type KeywordSource interface {
	Keywords(skill string) questionbank.Keywords
}

type Evaluation struct {
	Score    int                   `json:"score"`
	Feedback []string              `json:"feedback"`
	Quality  model.SpeakingQuality `json:"speaking_quality"`
	Signals  model.Signals         `json:"signals"`
}

type Scorer struct {
	weights   Weights
	keywords  KeywordSource
	evaluator Evaluator
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a scorer. evaluator may be nil, in which case only local signals are used.
func New(weights Weights, keywords KeywordSource, evaluator Evaluator, timeout time.Duration, logger *zap.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring weights: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		weights:   weights,
		keywords:  keywords,
		evaluator: evaluator,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

// Evaluate grades one answer. A nil answer is a skip. The result is always in [0,100].
func (s *Scorer) Evaluate(ctx context.Context, q model.Question, answer *string) Evaluation {
	if answer == nil {
		return Evaluation{
			Feedback: []string{"Question skipped."},
			Quality:  model.QualityBeginner,
		}
	}

	text := strings.TrimSpace(*answer)
	if len([]rune(text)) < s.weights.MinAnswerChars {
		feedback := "Insufficient response. Give a complete answer with examples."
		if text == "" {
			feedback = "No response provided."
		}
		return Evaluation{
			Feedback: []string{feedback},
			Quality:  model.QualityBeginner,
			Signals:  model.Signals{WordCount: model.WordCount(text)},
		}
	}

	signals, feedback := s.local(q, text)
	score := signals.LocalScore

	// Blend in the external grade when one is available
	if ext, extFeedback, ok := s.external(ctx, q, text); ok {
		signals.ExternalScore = &ext
		score = int(math.Round(s.weights.ExternalWeight*float64(ext) + (1-s.weights.ExternalWeight)*float64(score)))
		if extFeedback != "" {
			feedback = append(feedback, extFeedback)
		}
	}

	// Tier reality check
	adjusted := score
	switch q.Tier {
	case model.TierFresher:
		if adjusted > s.weights.FresherCap {
			adjusted = s.weights.FresherCap
		}
	default:
		if penalty, ok := s.weights.NoExpertPenalty[q.Tier]; ok && signals.ExpertHits == 0 {
			adjusted -= penalty
			feedback = append(feedback, fmt.Sprintf("At %s level, expect to discuss advanced topics such as %s.", q.Tier, s.expertHint(q.Skill)))
		}
	}
	adjusted = clamp(adjusted, 0, 100)
	signals.Adjustment = adjusted - score

	return Evaluation{
		Score:    adjusted,
		Feedback: feedback,
		Quality:  s.weights.QualityFor(adjusted),
		Signals:  signals,
	}
}

func (s *Scorer) local(q model.Question, text string) (model.Signals, []string) {
	w := s.weights
	lower := strings.ToLower(text)
	kw := s.keywords.Keywords(q.Skill)

	sig := model.Signals{WordCount: model.WordCount(text)}
	sig.LengthPoints = clamp(w.lengthPoints(sig.WordCount), 0, w.LengthMax)

	sig.BasicHits = countHits(lower, kw.Basic)
	sig.AdvancedHits = countHits(lower, kw.Advanced)
	sig.ExpertHits = countHits(lower, kw.Expert)
	mix := w.mix(q.Tier)
	coverage := mix.Basic*fraction(sig.BasicHits, len(kw.Basic)) +
		mix.Advanced*fraction(sig.AdvancedHits, len(kw.Advanced)) +
		mix.Expert*fraction(sig.ExpertHits, len(kw.Expert))
	sig.KeywordPoints = clamp(int(math.Round(coverage*float64(w.KeywordMax))), 0, w.KeywordMax)

	terms := contentWords(q.Text, w.RelevanceMinWordLen)
	answerWords := make(map[string]struct{})
	for _, word := range tokenize(lower) {
		answerWords[word] = struct{}{}
	}
	matched := 0
	for _, term := range terms {
		if _, ok := answerWords[term]; ok {
			matched++
		}
	}
	sig.RelevancePoints = clamp(int(math.Round(fraction(matched, len(terms))*float64(w.RelevanceMax))), 0, w.RelevanceMax)

	sig.LocalScore = clamp(sig.LengthPoints+sig.KeywordPoints+sig.RelevancePoints, 0, 100)

	var feedback []string
	switch {
	case sig.LengthPoints <= w.LengthMax/3:
		feedback = append(feedback, "Answer is brief; expand with concrete examples.")
	case sig.LengthPoints >= w.LengthMax:
		feedback = append(feedback, "Good depth of explanation.")
	}
	switch {
	case sig.BasicHits+sig.AdvancedHits+sig.ExpertHits == 0:
		feedback = append(feedback, fmt.Sprintf("Mention key %s concepts in your answer.", q.Skill))
	case sig.AdvancedHits+sig.ExpertHits > 0:
		feedback = append(feedback, "Good use of advanced terminology.")
	}
	if sig.RelevancePoints < w.RelevanceMax/2 {
		feedback = append(feedback, "Address the question more directly.")
	}
	return sig, feedback
}

// external asks the evaluator once; any failure means the local score stands
func (s *Scorer) external(ctx context.Context, q model.Question, text string) (int, string, bool) {
	if s.evaluator == nil {
		return 0, "", false
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.evaluator.ScoreText(ctx, Prompt(q, text))
	if err != nil {
		s.logger.Warn("External scorer unavailable, using local score",
			zap.Int("questionIndex", q.Index), zap.Error(err))
		return 0, "", false
	}
	score, feedback, err := ParseReply(reply)
	if err != nil {
		s.logger.Warn("Failed to parse external score, using local score",
			zap.Int("questionIndex", q.Index), zap.String("reply", reply), zap.Error(err))
		return 0, "", false
	}
	return score, feedback, true
}

func (s *Scorer) expertHint(skill string) string {
	expert := s.keywords.Keywords(skill).Expert
	if len(expert) == 0 {
		return "architecture and trade-offs"
	}
	if len(expert) > 2 {
		expert = expert[:2]
	}
	return strings.Join(expert, " and ")
}

// Prompt is the fixed rubric sent to the external grader
func Prompt(q model.Question, answer string) string {
	return fmt.Sprintf(`You are evaluating a job interview answer.
Candidate level: %s
Skill: %s
Question: %s
Answer: %s

Grade the answer from 0 to 100 for technical accuracy, depth and clarity.
Reply with exactly one line in the form:
Score: <integer 0-100> | Feedback: <one or two sentences>`, q.Tier.Label(), q.Skill, q.Text, answer)
}

var replyPattern = regexp.MustCompile(`(?is)score\s*[:=]\s*(-?\d+)\s*(?:/\s*100)?\s*(?:\|\s*feedback\s*[:=]\s*(.*))?`)

// ParseReply reads "Score: <int> | Feedback: <text>". Scores outside [0,100] are rejected.
func ParseReply(reply string) (int, string, error) {
	m := replyPattern.FindStringSubmatch(reply)
	if m == nil {
		return 0, "", fmt.Errorf("no score in reply")
	}
	score, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("invalid score %q: %w", m[1], err)
	}
	if score < 0 || score > 100 {
		return 0, "", fmt.Errorf("score %d out of range", score)
	}
	return score, strings.TrimSpace(m[2]), nil
}

func countHits(lower string, keywords []string) int {
	hits := 0
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			hits++
		}
	}
	return hits
}

func contentWords(text string, minLen int) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range tokenize(strings.ToLower(text)) {
		if len(w) <= minLen {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func fraction(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
