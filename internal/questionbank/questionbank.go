package questionbank

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"candor/internal/model"
)

//go:embed bank.yaml
var defaultBank []byte

const (
	// ProjectSkill tags the fixed project/experience block
	ProjectSkill = "project"

	TechnicalTimeLimit = 180
	ProjectTimeLimit   = 300

	skillPlaceholder = "{skill}"
)

// Keywords is the tiered vocabulary of one skill
type Keywords struct {
	Basic    []string `yaml:"basic" json:"basic"`
	Advanced []string `yaml:"advanced" json:"advanced"`
	Expert   []string `yaml:"expert" json:"expert"`
}

type skillTable struct {
	Keywords  Keywords                `yaml:"keywords"`
	Questions map[model.Tier][]string `yaml:"questions"`
}

type genericTable struct {
	Templates []string `yaml:"templates"`
	Keywords  Keywords `yaml:"keywords"`
}

type document struct {
	Aliases map[string]string     `yaml:"aliases"`
	Generic genericTable          `yaml:"generic"`
	Project skillTable            `yaml:"project"`
	Skills  map[string]skillTable `yaml:"skills"`
}

// Bank maps (skill, tier) to ordered questions. It is read-only after construction.
type Bank struct {
	doc document
}

// Default returns the bank built from the embedded tables
func Default() *Bank {
	b, err := Parse(defaultBank)
	if err != nil {
		panic(fmt.Sprintf("embedded question bank is invalid: %v", err))
	}
	return b
}

// Load reads an override bank from path, or returns the embedded bank when path is empty
func Load(path string) (*Bank, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML bank document
func Parse(data []byte) (*Bank, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if len(doc.Generic.Templates) == 0 {
		return nil, fmt.Errorf("question bank needs at least one generic template")
	}
	for _, t := range doc.Generic.Templates {
		if !strings.Contains(t, skillPlaceholder) {
			return nil, fmt.Errorf("generic template %q has no %s placeholder", t, skillPlaceholder)
		}
	}

	// keys are matched against normalized skills
	skills := make(map[string]skillTable, len(doc.Skills))
	for name, table := range doc.Skills {
		skills[strings.ToLower(strings.TrimSpace(name))] = table
	}
	doc.Skills = skills
	aliases := make(map[string]string, len(doc.Aliases))
	for alias, target := range doc.Aliases {
		aliases[strings.ToLower(strings.TrimSpace(alias))] = strings.ToLower(strings.TrimSpace(target))
	}
	doc.Aliases = aliases

	return &Bank{doc: doc}, nil
}

// Canonical resolves aliases, so "golang" and "go" share one table
func (b *Bank) Canonical(skill string) string {
	s := strings.ToLower(strings.TrimSpace(skill))
	if target, ok := b.doc.Aliases[s]; ok {
		return target
	}
	return s
}

// Known reports whether a skill has its own table
func (b *Bank) Known(skill string) bool {
	_, ok := b.doc.Skills[b.Canonical(skill)]
	return ok
}

// Keywords returns the vocabulary used to grade answers for a skill. Unknown skills get
// the generic vocabulary with the skill name itself as a basic term.
func (b *Bank) Keywords(skill string) Keywords {
	canonical := b.Canonical(skill)
	if canonical == ProjectSkill {
		return b.doc.Project.Keywords
	}
	if table, ok := b.doc.Skills[canonical]; ok {
		return table.Keywords
	}
	kw := b.doc.Generic.Keywords
	if canonical == "" {
		return kw
	}
	return Keywords{
		Basic:    append([]string{canonical}, kw.Basic...),
		Advanced: kw.Advanced,
		Expert:   kw.Expert,
	}
}

// ProjectQuestions returns the fixed project block for a tier
func (b *Bank) ProjectQuestions(tier model.Tier) []string {
	return lookupTier(b.doc.Project.Questions, tier)
}

// Generate builds the ordered question list for one interview: skills in the order given,
// table order inside a skill, project questions last. It never fails.
func (b *Bank) Generate(skills []string, tier model.Tier, maxSkills, perSkillCount int) []model.Question {
	if !tier.Valid() {
		tier = model.TierIntermediate
	}

	selected := b.dedupe(skills)
	if maxSkills >= 0 && len(selected) > maxSkills {
		selected = selected[:maxSkills]
	}

	var questions []model.Question
	for _, skill := range selected {
		for _, text := range b.skillQuestions(skill, tier, perSkillCount) {
			questions = append(questions, model.Question{
				Index:            len(questions),
				Skill:            skill,
				Text:             text,
				Category:         model.CategoryTechnical,
				Tier:             tier,
				TimeLimitSeconds: TechnicalTimeLimit,
			})
		}
	}
	for _, text := range b.ProjectQuestions(tier) {
		questions = append(questions, model.Question{
			Index:            len(questions),
			Skill:            ProjectSkill,
			Text:             text,
			Category:         model.CategoryProject,
			Tier:             tier,
			TimeLimitSeconds: ProjectTimeLimit,
		})
	}
	return questions
}

func (b *Bank) dedupe(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		c := b.Canonical(s)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (b *Bank) skillQuestions(skill string, tier model.Tier, count int) []string {
	if count <= 0 {
		return nil
	}
	out := make([]string, 0, count)
	if table, ok := b.doc.Skills[skill]; ok {
		for _, q := range lookupTier(table.Questions, tier) {
			if len(out) == count {
				break
			}
			out = append(out, q)
		}
	}
	templates := b.doc.Generic.Templates
	for i := 0; len(out) < count; i++ {
		out = append(out, strings.ReplaceAll(templates[i%len(templates)], skillPlaceholder, skill))
	}
	return out
}

// lookupTier falls back senior -> experienced, then to intermediate
func lookupTier(tables map[model.Tier][]string, tier model.Tier) []string {
	if qs, ok := tables[tier]; ok && len(qs) > 0 {
		return qs
	}
	if tier == model.TierSenior {
		if qs, ok := tables[model.TierExperienced]; ok && len(qs) > 0 {
			return qs
		}
	}
	return tables[model.TierIntermediate]
}
