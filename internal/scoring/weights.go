package scoring

import (
	"fmt"

	"candor/internal/model"
)

// LengthStep awards Points to answers shorter than Below words
type LengthStep struct {
	Below  int
	Points int
}

// TierMix weights the basic/advanced/expert keyword fractions for one tier
type TierMix struct {
	Basic    float64
	Advanced float64
	Expert   float64
}

// QualityThresholds are the minimum scores for each speaking-quality label
type QualityThresholds struct {
	Proficiency  int
	Fluent       int
	Advanced     int
	Intermediate int
}

// Weights holds every coefficient of the answer model
type Weights struct {
	MinAnswerChars int

	LengthSteps  []LengthStep
	LengthMax    int
	KeywordMax   int
	RelevanceMax int

	// words shorter than or equal to this are ignored when matching question terms
	RelevanceMinWordLen int

	TierMix map[model.Tier]TierMix

	ExternalWeight float64

	FresherCap      int
	NoExpertPenalty map[model.Tier]int

	Quality QualityThresholds
}

func DefaultWeights() Weights {
	return Weights{
		MinAnswerChars: 10,
		LengthSteps: []LengthStep{
			{Below: 20, Points: 8},
			{Below: 50, Points: 16},
			{Below: 100, Points: 24},
		},
		LengthMax:           30,
		KeywordMax:          50,
		RelevanceMax:        20,
		RelevanceMinWordLen: 3,
		TierMix: map[model.Tier]TierMix{
			model.TierFresher:      {Basic: 0.6, Advanced: 0.3, Expert: 0.1},
			model.TierIntermediate: {Basic: 0.45, Advanced: 0.35, Expert: 0.2},
			model.TierExperienced:  {Basic: 0.3, Advanced: 0.4, Expert: 0.3},
			model.TierSenior:       {Basic: 0.2, Advanced: 0.4, Expert: 0.4},
		},
		ExternalWeight: 0.6,
		FresherCap:     84,
		NoExpertPenalty: map[model.Tier]int{
			model.TierExperienced: 10,
			model.TierSenior:      15,
		},
		Quality: QualityThresholds{
			Proficiency:  85,
			Fluent:       75,
			Advanced:     60,
			Intermediate: 40,
		},
	}
}

// Validate checks that the weights describe a score in [0,100]
func (w Weights) Validate() error {
	if w.MinAnswerChars < 0 {
		return fmt.Errorf("min answer chars must not be negative")
	}
	if w.LengthMax+w.KeywordMax+w.RelevanceMax > 100 {
		return fmt.Errorf("signal maxima sum to %d, above 100", w.LengthMax+w.KeywordMax+w.RelevanceMax)
	}
	prev := LengthStep{}
	for _, s := range w.LengthSteps {
		if s.Below <= prev.Below || s.Points < prev.Points || s.Points > w.LengthMax {
			return fmt.Errorf("length steps must be increasing and within %d points", w.LengthMax)
		}
		prev = s
	}
	if w.ExternalWeight < 0 || w.ExternalWeight > 1 {
		return fmt.Errorf("external weight %.2f outside [0,1]", w.ExternalWeight)
	}
	q := w.Quality
	if !(q.Proficiency > q.Fluent && q.Fluent > q.Advanced && q.Advanced > q.Intermediate && q.Intermediate > 0) {
		return fmt.Errorf("quality thresholds must be strictly decreasing")
	}
	// entry-level answers stay below the top label
	if w.FresherCap <= 0 || w.FresherCap >= q.Proficiency {
		return fmt.Errorf("fresher cap %d must be in (0,%d)", w.FresherCap, q.Proficiency)
	}
	for tier, penalty := range w.NoExpertPenalty {
		if penalty < 0 || penalty > 100 {
			return fmt.Errorf("no-expert penalty %d for tier %s outside [0,100]", penalty, tier)
		}
	}
	for _, tier := range model.Tiers {
		if _, ok := w.TierMix[tier]; !ok {
			return fmt.Errorf("no keyword mix for tier %s", tier)
		}
	}
	return nil
}

// QualityFor maps a final answer score to a speaking-quality label
func (w Weights) QualityFor(score int) model.SpeakingQuality {
	switch {
	case score >= w.Quality.Proficiency:
		return model.QualityProficiency
	case score >= w.Quality.Fluent:
		return model.QualityFluent
	case score >= w.Quality.Advanced:
		return model.QualityAdvanced
	case score >= w.Quality.Intermediate:
		return model.QualityIntermediate
	}
	return model.QualityBeginner
}

func (w Weights) lengthPoints(words int) int {
	for _, s := range w.LengthSteps {
		if words < s.Below {
			return s.Points
		}
	}
	return w.LengthMax
}

func (w Weights) mix(tier model.Tier) TierMix {
	if m, ok := w.TierMix[tier]; ok {
		return m
	}
	return w.TierMix[model.TierIntermediate]
}
