package repo

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"

	"candor/internal/utils/tx"
)

type Repository struct {
	Candidate ICandidate
	Ent       *entsql.Driver
}

func New(drv *entsql.Driver) *Repository {
	return &Repository{
		Ent:       drv,
		Candidate: NewCandidateRepository(drv),
	}
}

// SaveCandidate stores a finished interview atomically and returns the record id
func (r *Repository) SaveCandidate(ctx context.Context, sub Submission) (string, error) {
	var id string
	err := tx.WithTransaction(ctx, r.Ent, func(ctx context.Context, tx tx.Tx) error {
		var err error
		id, err = r.Candidate.Save(ctx, tx, sub)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*Record, error) {
	return r.Candidate.GetByEmail(ctx, email)
}

func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Summary, int, error) {
	return r.Candidate.List(ctx, opts)
}
