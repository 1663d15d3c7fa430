package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"candor/internal/model"
	"candor/internal/questionbank"
	"candor/internal/scoring"
)

// QuestionSource builds the question list at registration
type QuestionSource interface {
	Generate(skills []string, tier model.Tier, maxSkills, perSkillCount int) []model.Question
}

// AnswerEvaluator grades one answer; a nil answer is a skip
type AnswerEvaluator interface {
	Evaluate(ctx context.Context, q model.Question, answer *string) scoring.Evaluation
}

// VerdictFinalizer folds results into the verdict
type VerdictFinalizer interface {
	Finalize(results []model.AnswerResult, secondary []model.SecondaryResult) model.FinalVerdict
}

type Deps struct {
	Questions  QuestionSource
	Scorer     AnswerEvaluator
	Aggregator VerdictFinalizer
	Now        func() time.Time
}

type Config struct {
	MaxSkills        int
	PerSkillCount    int
	SecondaryEnabled bool
	SecondaryPrompts []string
	IntroSkipPenalty int
}

var DefaultSecondaryPrompts = []string{
	"Describe how you keep yourself motivated when a project gets difficult.",
	"Tell us how you would explain a technical decision to a non-technical colleague.",
	"Where do you see your career in the next three years?",
}

func DefaultConfig() Config {
	return Config{
		MaxSkills:        3,
		PerSkillCount:    2,
		SecondaryEnabled: true,
		SecondaryPrompts: DefaultSecondaryPrompts,
		IntroSkipPenalty: 10,
	}
}

// Outcome reports what a command produced
type Outcome struct {
	Stage     Stage                  `json:"stage"`
	Answer    *model.AnswerResult    `json:"answer,omitempty"`
	Secondary *model.SecondaryResult `json:"secondary,omitempty"`
	Verdict   *model.FinalVerdict    `json:"verdict,omitempty"`
}

// Session is one candidate's interview. It is not safe for concurrent use; the owner
// serializes commands.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	stage  Stage
	start  time.Time
	closed time.Time

	profile   *model.CandidateProfile
	intro     *model.IntroductionResult
	questions []model.Question
	results   []model.AnswerResult
	secondary []model.SecondaryResult
	verdict   *model.FinalVerdict
}

func New(id string, cfg Config, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		id:    id,
		cfg:   cfg,
		deps:  deps,
		stage: StageRegistration,
		start: deps.Now(),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Stage() Stage         { return s.stage }
func (s *Session) StartedAt() time.Time { return s.start }
func (s *Session) CurrentIndex() int    { return len(s.results) }

func (s *Session) Profile() *model.CandidateProfile {
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	p.Skills = append([]string(nil), s.profile.Skills...)
	return &p
}

func (s *Session) Introduction() *model.IntroductionResult {
	if s.intro == nil {
		return nil
	}
	in := *s.intro
	return &in
}

func (s *Session) Questions() []model.Question {
	return append([]model.Question(nil), s.questions...)
}

func (s *Session) Results() []model.AnswerResult {
	return append([]model.AnswerResult(nil), s.results...)
}

func (s *Session) Secondary() []model.SecondaryResult {
	return append([]model.SecondaryResult(nil), s.secondary...)
}

func (s *Session) Verdict() *model.FinalVerdict {
	if s.verdict == nil {
		return nil
	}
	v := *s.verdict
	return &v
}

// Complete reports whether every question has a result
func (s *Session) Complete() bool {
	return len(s.questions) > 0 && len(s.results) == len(s.questions)
}

// CurrentQuestion returns the question awaiting an answer
func (s *Session) CurrentQuestion() (model.Question, bool) {
	if s.stage != StageQuestioning || len(s.results) >= len(s.questions) {
		return model.Question{}, false
	}
	return s.questions[len(s.results)], true
}

// CurrentPrompt returns the secondary prompt awaiting a response
func (s *Session) CurrentPrompt() (string, bool) {
	if s.stage != StageSecondary || len(s.secondary) >= len(s.cfg.SecondaryPrompts) {
		return "", false
	}
	return s.cfg.SecondaryPrompts[len(s.secondary)], true
}

// Handle dispatches a command to its method
func (s *Session) Handle(ctx context.Context, cmd Command) (Outcome, error) {
	switch c := cmd.(type) {
	case SubmitProfile:
		return s.SubmitProfile(c)
	case SubmitIntroduction:
		return s.SubmitIntroduction(c.Transcript)
	case SkipIntroduction:
		return s.SkipIntroduction()
	case SubmitAnswer:
		return s.SubmitAnswer(ctx, c.Answer, c.Expected)
	case SkipQuestion:
		return s.SkipQuestion(ctx, c.Expected)
	case SubmitSecondary:
		return s.SubmitSecondary(c.Response)
	case SkipSecondary:
		return s.SkipSecondary()
	case Finalize:
		return s.Finalize()
	case Close:
		return s.Close()
	case Restart:
		return s.Restart()
	case nil:
		return Outcome{Stage: s.stage}, fmt.Errorf("nil command")
	default:
		return Outcome{Stage: s.stage}, fmt.Errorf("unknown command %T", cmd)
	}
}

func (s *Session) SubmitProfile(p SubmitProfile) (Outcome, error) {
	if err := s.expect(p, StageRegistration); err != nil {
		return Outcome{Stage: s.stage}, err
	}

	profile, err := validateProfile(p)
	if err != nil {
		return Outcome{Stage: s.stage}, err
	}
	profile.RegisteredAt = s.deps.Now()

	s.profile = profile
	s.questions = s.deps.Questions.Generate(profile.Skills, profile.Tier, s.cfg.MaxSkills, s.cfg.PerSkillCount)
	s.stage = StageIntroduction
	return Outcome{Stage: s.stage}, nil
}

func (s *Session) SubmitIntroduction(transcript string) (Outcome, error) {
	if err := s.expect(SubmitIntroduction{}, StageIntroduction); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	t := strings.TrimSpace(transcript)
	s.intro = &model.IntroductionResult{Transcript: t, WordCount: model.WordCount(t)}
	s.enterQuestioning()
	return Outcome{Stage: s.stage}, nil
}

func (s *Session) SkipIntroduction() (Outcome, error) {
	if err := s.expect(SkipIntroduction{}, StageIntroduction); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	s.intro = &model.IntroductionResult{
		Transcript: model.SkippedAnswer,
		Skipped:    true,
		Penalty:    s.cfg.IntroSkipPenalty,
	}
	s.enterQuestioning()
	return Outcome{Stage: s.stage}, nil
}

func (s *Session) SubmitAnswer(ctx context.Context, answer string, expected *int) (Outcome, error) {
	return s.answer(ctx, SubmitAnswer{}, &answer, expected)
}

// SkipQuestion is identical to answering with nothing
func (s *Session) SkipQuestion(ctx context.Context, expected *int) (Outcome, error) {
	return s.answer(ctx, SkipQuestion{}, nil, expected)
}

func (s *Session) answer(ctx context.Context, cmd Command, answer *string, expected *int) (Outcome, error) {
	if err := s.expect(cmd, StageQuestioning); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	idx := len(s.results)
	if expected != nil && *expected != idx {
		return Outcome{Stage: s.stage}, fmt.Errorf("%w: expected %d, current %d", ErrStaleQuestion, *expected, idx)
	}
	q := s.questions[idx]

	ev := s.deps.Scorer.Evaluate(ctx, q, answer)
	result := model.AnswerResult{
		QuestionIndex: q.Index,
		Question:      q.Text,
		Skill:         q.Skill,
		Category:      q.Category,
		Answer:        model.SkippedAnswer,
		Score:         ev.Score,
		Feedback:      ev.Feedback,
		Quality:       ev.Quality,
		Skipped:       answer == nil,
		Signals:       ev.Signals,
		AnsweredAt:    s.deps.Now(),
	}
	if answer != nil {
		result.Answer = *answer
	}
	if result.Skipped {
		result.Score = 0
		result.Quality = model.QualityBeginner
	}
	s.results = append(s.results, result)

	if len(s.results) == len(s.questions) {
		s.leaveQuestioning()
	}
	return Outcome{Stage: s.stage, Answer: &result}, nil
}

func (s *Session) SubmitSecondary(response string) (Outcome, error) {
	return s.respond(SubmitSecondary{}, &response)
}

func (s *Session) SkipSecondary() (Outcome, error) {
	return s.respond(SkipSecondary{}, nil)
}

func (s *Session) respond(cmd Command, response *string) (Outcome, error) {
	if err := s.expect(cmd, StageSecondary); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	result := model.SecondaryResult{
		Prompt:   s.cfg.SecondaryPrompts[len(s.secondary)],
		Response: model.SkippedAnswer,
		Skipped:  response == nil,
	}
	if response != nil {
		result.Response = strings.TrimSpace(*response)
		result.Confidence = scoring.Confidence(result.Response)
	}
	s.secondary = append(s.secondary, result)

	if len(s.secondary) == len(s.cfg.SecondaryPrompts) {
		s.stage = StageResults
	}
	return Outcome{Stage: s.stage, Secondary: &result}, nil
}

// Finalize computes the verdict on first call and returns the same verdict afterwards
func (s *Session) Finalize() (Outcome, error) {
	if err := s.expect(Finalize{}, StageResults, StageTerminal); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	if s.verdict == nil {
		v := s.deps.Aggregator.Finalize(s.results, s.secondary)
		s.verdict = &v
	}
	return Outcome{Stage: s.stage, Verdict: s.Verdict()}, nil
}

func (s *Session) Close() (Outcome, error) {
	if err := s.expect(Close{}, StageResults); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	out, err := s.Finalize()
	if err != nil {
		return out, err
	}
	s.stage = StageTerminal
	s.closed = s.deps.Now()
	out.Stage = s.stage
	return out, nil
}

// Restart discards all collected data and starts a fresh registration
func (s *Session) Restart() (Outcome, error) {
	if err := s.expect(Restart{}, StageResults, StageTerminal); err != nil {
		return Outcome{Stage: s.stage}, err
	}
	*s = Session{
		id:    s.id,
		cfg:   s.cfg,
		deps:  s.deps,
		stage: StageRegistration,
		start: s.deps.Now(),
	}
	return Outcome{Stage: s.stage}, nil
}

func (s *Session) enterQuestioning() {
	s.stage = StageQuestioning
	if len(s.questions) == 0 {
		s.leaveQuestioning()
	}
}

func (s *Session) leaveQuestioning() {
	if s.cfg.SecondaryEnabled && len(s.cfg.SecondaryPrompts) > 0 {
		s.stage = StageSecondary
		return
	}
	s.stage = StageResults
}

func (s *Session) expect(cmd Command, stages ...Stage) error {
	for _, st := range stages {
		if s.stage == st {
			return nil
		}
	}
	return &StageError{Command: cmd.name(), Stage: s.stage}
}

func validateProfile(p SubmitProfile) (*model.CandidateProfile, error) {
	verr := &ValidationError{}
	required := []struct {
		field string
		value string
	}{
		{"name", p.Name},
		{"email", p.Email},
		{"phone", p.Phone},
		{"position", p.Position},
		{"experience", p.Experience},
		{"skills", p.Skills},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			verr.add(f.field, "required")
		}
	}

	email := strings.TrimSpace(p.Email)
	if email != "" && (!strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@")) {
		verr.add("email", "malformed")
	}
	skills := questionbank.NormalizeSkills(p.Skills)
	if strings.TrimSpace(p.Skills) != "" && len(skills) == 0 {
		verr.add("skills", "no skills listed")
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	return &model.CandidateProfile{
		Name:      strings.TrimSpace(p.Name),
		Email:     strings.ToLower(email),
		Phone:     strings.TrimSpace(p.Phone),
		Position:  strings.TrimSpace(p.Position),
		Tier:      questionbank.ParseTier(p.Experience),
		RawSkills: p.Skills,
		Skills:    skills,
	}, nil
}
