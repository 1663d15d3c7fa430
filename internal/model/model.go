package model

import (
	"strings"
	"time"
)

// Tier is the candidate experience bracket
type Tier string

const (
	TierFresher      Tier = "fresher"
	TierIntermediate Tier = "intermediate"
	TierExperienced  Tier = "experienced"
	TierSenior       Tier = "senior"
)

// Tiers lists every tier from least to most experienced
var Tiers = []Tier{TierFresher, TierIntermediate, TierExperienced, TierSenior}

func (t Tier) Valid() bool {
	switch t {
	case TierFresher, TierIntermediate, TierExperienced, TierSenior:
		return true
	}
	return false
}

// Label returns the display form used in reports
func (t Tier) Label() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// Category separates skill questions from the fixed project block
type Category string

const (
	CategoryTechnical Category = "technical"
	CategoryProject   Category = "project"
)

// SpeakingQuality is ordered: Beginner < Intermediate < Advanced < Fluent < Proficiency
type SpeakingQuality int

const (
	QualityBeginner SpeakingQuality = iota
	QualityIntermediate
	QualityAdvanced
	QualityFluent
	QualityProficiency
)

func (q SpeakingQuality) String() string {
	switch q {
	case QualityBeginner:
		return "Beginner"
	case QualityIntermediate:
		return "Intermediate"
	case QualityAdvanced:
		return "Advanced"
	case QualityFluent:
		return "Fluent"
	case QualityProficiency:
		return "Proficiency"
	}
	return "Unknown"
}

func (q SpeakingQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *SpeakingQuality) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "intermediate":
		*q = QualityIntermediate
	case "advanced":
		*q = QualityAdvanced
	case "fluent":
		*q = QualityFluent
	case "proficiency":
		*q = QualityProficiency
	default:
		*q = QualityBeginner
	}
	return nil
}

// Verdict is the categorical hiring recommendation
type Verdict string

const (
	VerdictOutstanding Verdict = "Selected (Outstanding)"
	VerdictSelected    Verdict = "Selected"
	VerdictPending     Verdict = "Pending"
	VerdictRejected    Verdict = "Rejected"
)

// SkippedAnswer is stored as the answer text of a skipped question or prompt
const SkippedAnswer = "skipped"

// CandidateProfile is created once at registration and never changed afterwards
type CandidateProfile struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Position     string    `json:"position"`
	Tier         Tier      `json:"tier"`
	RawSkills    string    `json:"raw_skills"`
	Skills       []string  `json:"skills"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Question struct {
	Index            int      `json:"index"`
	Skill            string   `json:"skill"`
	Text             string   `json:"text"`
	Category         Category `json:"category"`
	Tier             Tier     `json:"tier"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// Signals is the breakdown behind an answer score
type Signals struct {
	WordCount       int  `json:"word_count"`
	LengthPoints    int  `json:"length_points"`
	KeywordPoints   int  `json:"keyword_points"`
	RelevancePoints int  `json:"relevance_points"`
	BasicHits       int  `json:"basic_hits"`
	AdvancedHits    int  `json:"advanced_hits"`
	ExpertHits      int  `json:"expert_hits"`
	LocalScore      int  `json:"local_score"`
	ExternalScore   *int `json:"external_score,omitempty"`
	Adjustment      int  `json:"adjustment"`
}

type AnswerResult struct {
	QuestionIndex int             `json:"question_index"`
	Question      string          `json:"question"`
	Skill         string          `json:"skill"`
	Category      Category        `json:"category"`
	Answer        string          `json:"answer"`
	Score         int             `json:"score"`
	Feedback      []string        `json:"feedback"`
	Quality       SpeakingQuality `json:"speaking_quality"`
	Skipped       bool            `json:"skipped"`
	Signals       Signals         `json:"signals"`
	AnsweredAt    time.Time       `json:"answered_at"`
}

type IntroductionResult struct {
	Transcript string `json:"transcript"`
	WordCount  int    `json:"word_count"`
	Skipped    bool   `json:"skipped"`
	Penalty    int    `json:"penalty"`
}

type SecondaryResult struct {
	Prompt     string `json:"prompt"`
	Response   string `json:"response"`
	Confidence int    `json:"confidence"`
	Skipped    bool   `json:"skipped"`
}

type FinalVerdict struct {
	OverallScore        int             `json:"overall_score"`
	Verdict             Verdict         `json:"verdict"`
	Quality             SpeakingQuality `json:"speaking_quality"`
	TechnicalAverage    float64         `json:"technical_average"`
	ProjectAverage      float64         `json:"project_average"`
	BaseScore           float64         `json:"base_score"`
	SkipCount           int             `json:"skip_count"`
	SkipPenalty         int             `json:"skip_penalty"`
	SecondaryAdjustment int             `json:"secondary_adjustment"`
	DecidedAt           time.Time       `json:"decided_at"`
}

// WordCount counts whitespace separated tokens
func WordCount(s string) int {
	return len(strings.Fields(s))
}
