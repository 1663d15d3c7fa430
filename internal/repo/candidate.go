package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"candor/internal/model"
	"candor/internal/utils/sort"
	"candor/internal/utils/tx"
)

var (
	ErrDuplicateCandidate = errors.New("candidate already exists")
	ErrNotFound           = errors.New("candidate not found")
	ErrInvalidSort        = errors.New("invalid sort")
)

// SortColumns are the columns List accepts in its sort parameter
var SortColumns = []string{"name", "email", "position", "overall_score", "verdict", "decided_at", "created_at"}

// Submission is everything recorded for one finished interview
type Submission struct {
	Profile      model.CandidateProfile   `json:"profile"`
	Introduction model.IntroductionResult `json:"introduction"`
	Results      []model.AnswerResult     `json:"results"`
	Secondary    []model.SecondaryResult  `json:"secondary"`
	Verdict      model.FinalVerdict       `json:"verdict"`
}

// Record is a stored submission
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Submission
}

// Summary is one row of the candidate history
type Summary struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Email        string                `json:"email"`
	Position     string                `json:"position"`
	Tier         model.Tier            `json:"tier"`
	OverallScore int                   `json:"overall_score"`
	Verdict      model.Verdict         `json:"verdict"`
	Quality      model.SpeakingQuality `json:"speaking_quality"`
	DecidedAt    time.Time             `json:"decided_at"`
}

type ListOptions struct {
	Page int
	Size int
	Sort string
}

type ICandidate interface {
	Save(ctx context.Context, tx tx.Tx, sub Submission) (string, error)
	GetByEmail(ctx context.Context, email string) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]Summary, int, error)
}

type EntCandidate struct {
	drv *entsql.Driver
	now func() time.Time
}

func NewCandidateRepository(drv *entsql.Driver) *EntCandidate {
	return &EntCandidate{drv: drv, now: time.Now}
}

func (r *EntCandidate) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

// Save writes the candidate, answer and secondary rows on tx. A second submission for the
// same email fails with ErrDuplicateCandidate.
func (r *EntCandidate) Save(ctx context.Context, tx tx.Tx, sub Submission) (string, error) {
	email := strings.ToLower(strings.TrimSpace(sub.Profile.Email))

	exists, err := r.exists(ctx, tx, email)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateCandidate, email)
	}

	skills, err := json.Marshal(sub.Profile.Skills)
	if err != nil {
		return "", fmt.Errorf("failed to marshal skills: %w", err)
	}

	id := uuid.NewString()
	p, v, in := sub.Profile, sub.Verdict, sub.Introduction
	query, args := r.builder().Insert(tableCandidates).
		Columns("id", "name", "email", "phone", "position", "tier", "raw_skills", "skills",
			"intro_transcript", "intro_skipped", "intro_penalty",
			"overall_score", "verdict", "speaking_quality", "technical_average", "project_average",
			"base_score", "skip_count", "skip_penalty", "secondary_adjustment",
			"registered_at", "decided_at", "created_at").
		Values(id, p.Name, email, p.Phone, p.Position, string(p.Tier), p.RawSkills, string(skills),
			in.Transcript, boolInt(in.Skipped), in.Penalty,
			v.OverallScore, string(v.Verdict), v.Quality.String(), v.TechnicalAverage, v.ProjectAverage,
			v.BaseScore, v.SkipCount, v.SkipPenalty, v.SecondaryAdjustment,
			toMillis(p.RegisteredAt), toMillis(v.DecidedAt), toMillis(r.now())).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateCandidate, email)
		}
		return "", fmt.Errorf("failed to insert candidate: %w", err)
	}

	for _, a := range sub.Results {
		feedback, err := json.Marshal(a.Feedback)
		if err != nil {
			return "", fmt.Errorf("failed to marshal feedback: %w", err)
		}
		signals, err := json.Marshal(a.Signals)
		if err != nil {
			return "", fmt.Errorf("failed to marshal signals: %w", err)
		}
		query, args := r.builder().Insert(tableAnswers).
			Columns("id", "candidate_id", "question_index", "question", "skill", "category", "answer",
				"score", "speaking_quality", "skipped", "feedback", "signals", "answered_at").
			Values(uuid.NewString(), id, a.QuestionIndex, a.Question, a.Skill, string(a.Category), a.Answer,
				a.Score, a.Quality.String(), boolInt(a.Skipped), string(feedback), string(signals), toMillis(a.AnsweredAt)).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return "", fmt.Errorf("failed to insert answer %d: %w", a.QuestionIndex, err)
		}
	}

	for i, s := range sub.Secondary {
		query, args := r.builder().Insert(tableSecondary).
			Columns("id", "candidate_id", "prompt_index", "prompt", "response", "confidence", "skipped").
			Values(uuid.NewString(), id, i, s.Prompt, s.Response, s.Confidence, boolInt(s.Skipped)).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return "", fmt.Errorf("failed to insert secondary result %d: %w", i, err)
		}
	}
	return id, nil
}

func (r *EntCandidate) exists(ctx context.Context, tx tx.Tx, email string) (bool, error) {
	query, args := r.builder().Select("id").From(entsql.Table(tableCandidates)).
		Where(entsql.EQ("email", email)).Limit(1).Query()
	rows := &entsql.Rows{}
	if err := tx.Query(ctx, query, args, rows); err != nil {
		return false, fmt.Errorf("failed to query candidate: %w", err)
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

func (r *EntCandidate) GetByEmail(ctx context.Context, email string) (*Record, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query, args := r.builder().Select(
		"id", "name", "email", "phone", "position", "tier", "raw_skills", "skills",
		"intro_transcript", "intro_skipped", "intro_penalty",
		"overall_score", "verdict", "speaking_quality", "technical_average", "project_average",
		"base_score", "skip_count", "skip_penalty", "secondary_adjustment",
		"registered_at", "decided_at", "created_at").
		From(entsql.Table(tableCandidates)).
		Where(entsql.EQ("email", email)).
		Query()

	rec, err := r.scanCandidate(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if rec.Results, err = r.answers(ctx, rec.ID); err != nil {
		return nil, err
	}
	if rec.Secondary, err = r.secondary(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *EntCandidate) scanCandidate(ctx context.Context, query string, args []any) (*Record, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query candidate: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var (
		rec                              Record
		tier, skills, verdict, quality   string
		introSkipped                     int
		registeredAt, decidedAt, created int64
	)
	p, v, in := &rec.Profile, &rec.Verdict, &rec.Introduction
	if err := rows.Scan(&rec.ID, &p.Name, &p.Email, &p.Phone, &p.Position, &tier, &p.RawSkills, &skills,
		&in.Transcript, &introSkipped, &in.Penalty,
		&v.OverallScore, &verdict, &quality, &v.TechnicalAverage, &v.ProjectAverage,
		&v.BaseScore, &v.SkipCount, &v.SkipPenalty, &v.SecondaryAdjustment,
		&registeredAt, &decidedAt, &created); err != nil {
		return nil, fmt.Errorf("failed to scan candidate: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills: %w", err)
	}
	p.Tier = model.Tier(tier)
	p.RegisteredAt = fromMillis(registeredAt)
	in.Skipped = introSkipped != 0
	in.WordCount = model.WordCount(in.Transcript)
	if in.Skipped {
		in.WordCount = 0
	}
	v.Verdict = model.Verdict(verdict)
	_ = v.Quality.UnmarshalText([]byte(quality))
	v.DecidedAt = fromMillis(decidedAt)
	rec.CreatedAt = fromMillis(created)
	return &rec, rows.Err()
}

func (r *EntCandidate) answers(ctx context.Context, candidateID string) ([]model.AnswerResult, error) {
	query, args := r.builder().Select("question_index", "question", "skill", "category", "answer",
		"score", "speaking_quality", "skipped", "feedback", "signals", "answered_at").
		From(entsql.Table(tableAnswers)).
		Where(entsql.EQ("candidate_id", candidateID)).
		OrderBy("question_index").
		Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var out []model.AnswerResult
	for rows.Next() {
		var (
			a                 model.AnswerResult
			category, quality string
			feedback, signals string
			skipped           int
			answeredAt        int64
		)
		if err := rows.Scan(&a.QuestionIndex, &a.Question, &a.Skill, &category, &a.Answer,
			&a.Score, &quality, &skipped, &feedback, &signals, &answeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.Category = model.Category(category)
		_ = a.Quality.UnmarshalText([]byte(quality))
		a.Skipped = skipped != 0
		if err := json.Unmarshal([]byte(feedback), &a.Feedback); err != nil {
			return nil, fmt.Errorf("failed to decode feedback: %w", err)
		}
		if err := json.Unmarshal([]byte(signals), &a.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals: %w", err)
		}
		a.AnsweredAt = fromMillis(answeredAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *EntCandidate) secondary(ctx context.Context, candidateID string) ([]model.SecondaryResult, error) {
	query, args := r.builder().Select("prompt", "response", "confidence", "skipped").
		From(entsql.Table(tableSecondary)).
		Where(entsql.EQ("candidate_id", candidateID)).
		OrderBy("prompt_index").
		Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query secondary results: %w", err)
	}
	defer rows.Close()

	var out []model.SecondaryResult
	for rows.Next() {
		var (
			s       model.SecondaryResult
			skipped int
		)
		if err := rows.Scan(&s.Prompt, &s.Response, &s.Confidence, &skipped); err != nil {
			return nil, fmt.Errorf("failed to scan secondary result: %w", err)
		}
		s.Skipped = skipped != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// List returns one page of candidates and the total count
func (r *EntCandidate) List(ctx context.Context, opts ListOptions) ([]Summary, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Size < 1 || opts.Size > 100 {
		opts.Size = 20
	}
	if opts.Sort == "" {
		opts.Sort = "decided_at:desc"
	}
	order, err := sort.GetSort(SortColumns, sort.Parse(opts.Sort))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidSort, err)
	}

	total, err := r.count(ctx)
	if err != nil {
		return nil, 0, err
	}

	selector := r.builder().Select("id", "name", "email", "position", "tier", "overall_score",
		"verdict", "speaking_quality", "decided_at").
		From(entsql.Table(tableCandidates))
	order(selector)
	selector.Limit(opts.Size).Offset((opts.Page - 1) * opts.Size)
	query, args := selector.Query()

	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s                      Summary
			tier, verdict, quality string
			decidedAt              int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Position, &tier, &s.OverallScore,
			&verdict, &quality, &decidedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan candidate: %w", err)
		}
		s.Tier = model.Tier(tier)
		s.Verdict = model.Verdict(verdict)
		_ = s.Quality.UnmarshalText([]byte(quality))
		s.DecidedAt = fromMillis(decidedAt)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *EntCandidate) count(ctx context.Context) (int, error) {
	query, args := r.builder().Select(entsql.Count("*")).From(entsql.Table(tableCandidates)).Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return 0, fmt.Errorf("failed to count candidates: %w", err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}
	return n, rows.Err()
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
