package session

import "fmt"

// Stage is the position of an interview in its linear flow. Stages only move forward,
// except Restart which returns to Registration.
type Stage int

const (
	StageRegistration Stage = iota
	StageIntroduction
	StageQuestioning
	StageSecondary
	StageResults
	StageTerminal
)

var stageNames = map[Stage]string{
	StageRegistration: "registration",
	StageIntroduction: "introduction",
	StageQuestioning:  "questioning",
	StageSecondary:    "secondary_assessment",
	StageResults:      "results",
	StageTerminal:     "terminal",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	if _, ok := stageNames[s]; !ok {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", string(text))
}
