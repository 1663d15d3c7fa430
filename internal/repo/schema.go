package repo

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

const (
	tableCandidates = "candidates"
	tableAnswers    = "answers"
	tableSecondary  = "secondary_results"
)

// The DDL sticks to the subset MySQL and SQLite share. Timestamps are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS candidates (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		phone VARCHAR(64) NOT NULL,
		position VARCHAR(255) NOT NULL,
		tier VARCHAR(32) NOT NULL,
		raw_skills TEXT NOT NULL,
		skills TEXT NOT NULL,
		intro_transcript TEXT NOT NULL,
		intro_skipped INT NOT NULL DEFAULT 0,
		intro_penalty INT NOT NULL DEFAULT 0,
		overall_score INT NOT NULL,
		verdict VARCHAR(64) NOT NULL,
		speaking_quality VARCHAR(32) NOT NULL,
		technical_average DOUBLE NOT NULL,
		project_average DOUBLE NOT NULL,
		base_score DOUBLE NOT NULL,
		skip_count INT NOT NULL,
		skip_penalty INT NOT NULL,
		secondary_adjustment INT NOT NULL,
		registered_at BIGINT NOT NULL,
		decided_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS answers (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		candidate_id VARCHAR(36) NOT NULL,
		question_index INT NOT NULL,
		question TEXT NOT NULL,
		skill VARCHAR(128) NOT NULL,
		category VARCHAR(32) NOT NULL,
		answer TEXT NOT NULL,
		score INT NOT NULL,
		speaking_quality VARCHAR(32) NOT NULL,
		skipped INT NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL,
		signals TEXT NOT NULL,
		answered_at BIGINT NOT NULL,
		FOREIGN KEY (candidate_id) REFERENCES candidates (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS secondary_results (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		candidate_id VARCHAR(36) NOT NULL,
		prompt_index INT NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		confidence INT NOT NULL,
		skipped INT NOT NULL DEFAULT 0,
		FOREIGN KEY (candidate_id) REFERENCES candidates (id) ON DELETE CASCADE
	)`,
}

// Migrate creates the tables when they do not exist yet
func Migrate(ctx context.Context, drv *entsql.Driver) error {
	for _, stmt := range schema {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
