package session

import (
	"fmt"
	"time"

	"candor/internal/model"
)

// Snapshot is the serializable state of a session
type Snapshot struct {
	ID           string                    `json:"id"`
	Stage        Stage                     `json:"stage"`
	StartedAt    time.Time                 `json:"started_at"`
	ClosedAt     time.Time                 `json:"closed_at,omitempty"`
	Profile      *model.CandidateProfile   `json:"profile,omitempty"`
	Introduction *model.IntroductionResult `json:"introduction,omitempty"`
	Questions    []model.Question          `json:"questions"`
	Results      []model.AnswerResult      `json:"results"`
	Prompts      []string                  `json:"prompts"`
	Secondary    []model.SecondaryResult   `json:"secondary"`
	Verdict      *model.FinalVerdict       `json:"verdict,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.id,
		Stage:        s.stage,
		StartedAt:    s.start,
		ClosedAt:     s.closed,
		Profile:      s.Profile(),
		Introduction: s.Introduction(),
		Questions:    s.Questions(),
		Results:      s.Results(),
		Prompts:      append([]string(nil), s.cfg.SecondaryPrompts...),
		Secondary:    s.Secondary(),
		Verdict:      s.Verdict(),
	}
}

// Restore rebuilds a session from a snapshot. The prompts recorded in the snapshot win over
// cfg so that a config change cannot shift a live secondary stage.
func Restore(snap Snapshot, cfg Config, deps Deps) (*Session, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("snapshot has no id")
	}
	if _, ok := stageNames[snap.Stage]; !ok {
		return nil, fmt.Errorf("snapshot %s has unknown stage %d", snap.ID, int(snap.Stage))
	}
	if len(snap.Results) > len(snap.Questions) {
		return nil, fmt.Errorf("snapshot %s has %d results for %d questions", snap.ID, len(snap.Results), len(snap.Questions))
	}
	if snap.Stage > StageRegistration && snap.Profile == nil {
		return nil, fmt.Errorf("snapshot %s is past registration without a profile", snap.ID)
	}
	if snap.Prompts != nil {
		cfg.SecondaryPrompts = snap.Prompts
	}
	if len(snap.Secondary) > len(cfg.SecondaryPrompts) {
		return nil, fmt.Errorf("snapshot %s has %d secondary results for %d prompts", snap.ID, len(snap.Secondary), len(cfg.SecondaryPrompts))
	}

	s := New(snap.ID, cfg, deps)
	s.stage = snap.Stage
	s.start = snap.StartedAt
	s.closed = snap.ClosedAt
	s.profile = snap.Profile
	s.intro = snap.Introduction
	s.questions = snap.Questions
	s.results = snap.Results
	s.secondary = snap.Secondary
	s.verdict = snap.Verdict
	return s, nil
}
