package aggregate

import (
	"fmt"
	"math"
	"time"

	"candor/internal/model"
)

// Threshold is the minimum score for a verdict
type Threshold struct {
	Min     int
	Verdict model.Verdict
}

type Policy struct {
	TechnicalWeight float64
	ProjectWeight   float64

	SkipPenalty int

	// secondary adjustment: round((avg - Pivot) / Divisor), clamped to +/- MaxAdjustment
	SecondaryPivot         float64
	SecondaryDivisor       float64
	SecondaryMaxAdjustment int
	SecondaryMissing       int

	// ordered from highest to lowest; the last entry must start at 0
	Thresholds []Threshold
}

func DefaultPolicy() Policy {
	return Policy{
		TechnicalWeight:        0.75,
		ProjectWeight:          0.25,
		SkipPenalty:            15,
		SecondaryPivot:         50,
		SecondaryDivisor:       5,
		SecondaryMaxAdjustment: 10,
		SecondaryMissing:       -5,
		Thresholds: []Threshold{
			{Min: 80, Verdict: model.VerdictOutstanding},
			{Min: 65, Verdict: model.VerdictSelected},
			{Min: 45, Verdict: model.VerdictPending},
			{Min: 0, Verdict: model.VerdictRejected},
		},
	}
}

// Validate checks the thresholds cover every score in [0,100] exactly once
func (p Policy) Validate() error {
	if len(p.Thresholds) == 0 {
		return fmt.Errorf("no verdict thresholds")
	}
	for i := 1; i < len(p.Thresholds); i++ {
		if p.Thresholds[i].Min >= p.Thresholds[i-1].Min {
			return fmt.Errorf("verdict thresholds must be strictly decreasing, got %d after %d",
				p.Thresholds[i].Min, p.Thresholds[i-1].Min)
		}
	}
	if p.Thresholds[0].Min > 100 {
		return fmt.Errorf("top verdict threshold %d is unreachable", p.Thresholds[0].Min)
	}
	if last := p.Thresholds[len(p.Thresholds)-1].Min; last != 0 {
		return fmt.Errorf("lowest verdict threshold must be 0, got %d", last)
	}
	if p.TechnicalWeight < 0 || p.ProjectWeight < 0 || math.Abs(p.TechnicalWeight+p.ProjectWeight-1) > 1e-9 {
		return fmt.Errorf("category weights must be non-negative and sum to 1")
	}
	if p.SkipPenalty < 0 {
		return fmt.Errorf("skip penalty must not be negative")
	}
	if p.SecondaryDivisor <= 0 {
		return fmt.Errorf("secondary divisor must be positive")
	}
	return nil
}

type Aggregator struct {
	policy Policy
	now    func() time.Time
}

func New(policy Policy) (*Aggregator, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aggregation policy: %w", err)
	}
	return &Aggregator{policy: policy, now: time.Now}, nil
}

// Verdict maps a clamped score to its category
func (a *Aggregator) Verdict(score int) model.Verdict {
	for _, t := range a.policy.Thresholds {
		if score >= t.Min {
			return t.Verdict
		}
	}
	return a.policy.Thresholds[len(a.policy.Thresholds)-1].Verdict
}

// Finalize folds the answer and secondary results into the verdict
func (a *Aggregator) Finalize(results []model.AnswerResult, secondary []model.SecondaryResult) model.FinalVerdict {
	p := a.policy
	v := model.FinalVerdict{Quality: model.QualityBeginner}

	var techSum, projSum float64
	var techN, projN int
	for _, r := range results {
		switch r.Category {
		case model.CategoryProject:
			projSum += float64(r.Score)
			projN++
		default:
			techSum += float64(r.Score)
			techN++
		}
		if r.Skipped {
			v.SkipCount++
			continue
		}
		if r.Quality > v.Quality {
			v.Quality = r.Quality
		}
	}
	if techN > 0 {
		v.TechnicalAverage = techSum / float64(techN)
	}
	if projN > 0 {
		v.ProjectAverage = projSum / float64(projN)
	}

	switch {
	case techN > 0 && projN > 0:
		v.BaseScore = p.TechnicalWeight*v.TechnicalAverage + p.ProjectWeight*v.ProjectAverage
	case techN > 0:
		v.BaseScore = v.TechnicalAverage
	case projN > 0:
		v.BaseScore = v.ProjectAverage
	}

	v.SkipPenalty = v.SkipCount * p.SkipPenalty
	base := math.Max(0, v.BaseScore-float64(v.SkipPenalty))

	v.SecondaryAdjustment = a.secondaryAdjustment(secondary)

	v.OverallScore = clamp(int(math.Round(base))+v.SecondaryAdjustment, 0, 100)
	v.Verdict = a.Verdict(v.OverallScore)
	v.DecidedAt = a.now()
	return v
}

func (a *Aggregator) secondaryAdjustment(secondary []model.SecondaryResult) int {
	p := a.policy
	var sum, n int
	for _, s := range secondary {
		if s.Skipped {
			continue
		}
		sum += s.Confidence
		n++
	}
	if n == 0 {
		return p.SecondaryMissing
	}
	avg := float64(sum) / float64(n)
	delta := int(math.Round((avg - p.SecondaryPivot) / p.SecondaryDivisor))
	return clamp(delta, -p.SecondaryMaxAdjustment, p.SecondaryMaxAdjustment)
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
