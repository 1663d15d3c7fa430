package questionbank

import (
	"strings"

	"candor/internal/model"
)

// ParseTier accepts tier names and the registration form labels. Unknown input is
// treated as intermediate.
func ParseTier(s string) model.Tier {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "fresher", "entry", "junior", "0-1 years", "0-1":
		return model.TierFresher
	case "intermediate", "mid", "1-3 years", "1-3":
		return model.TierIntermediate
	case "experienced", "3-5 years", "3-5":
		return model.TierExperienced
	case "senior", "lead", "5+ years", "5+":
		return model.TierSenior
	}
	return model.TierIntermediate
}

// NormalizeSkills splits the free-text skills field into lower-cased, deduplicated
// entries in first-seen order
func NormalizeSkills(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '/', '\n', '\r', '|':
			return true
		}
		return false
	})

	seen := make(map[string]struct{}, len(fields))
	skills := make([]string, 0, len(fields))
	for _, f := range fields {
		s := strings.Join(strings.Fields(strings.ToLower(f)), " ")
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		skills = append(skills, s)
	}
	return skills
}
