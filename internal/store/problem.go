package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/codearena-oj/apiserver/types"
)

// ProblemRepository handles persistence for problems and their test cases.
type ProblemRepository struct {
	db *sql.DB
}

func NewProblemRepository(db *sql.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

const problemColumns = `id, title, description, difficulty, category, tags, constraints,
		       acceptance_rate, total_submissions, total_accepted, archive_key,
		       created_at, updated_at`

func scanProblem(row interface{ Scan(...any) error }) (types.Problem, error) {
	var problem types.Problem
	var tagsJSON []byte
	err := row.Scan(
		&problem.ID,
		&problem.Title,
		&problem.Description,
		&problem.Difficulty,
		&problem.Category,
		&tagsJSON,
		&problem.Constraints,
		&problem.AcceptanceRate,
		&problem.TotalSubmissions,
		&problem.TotalAccepted,
		&problem.ArchiveKey,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	)
	if err != nil {
		return types.Problem{}, err
	}
	_ = json.Unmarshal(tagsJSON, &problem.Tags)
	return problem, nil
}

func (r *ProblemRepository) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM problems`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT ` + problemColumns + `
		FROM problems
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	problems := make([]types.Problem, 0, limit)
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, 0, err
		}
		problems = append(problems, problem)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return problems, total, nil
}

func (r *ProblemRepository) Get(ctx context.Context, id int) (types.Problem, error) {
	query := `
		SELECT ` + problemColumns + `
		FROM problems
		WHERE id = $1`
	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}
	return problem, nil
}

func (r *ProblemRepository) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	now := time.Now()
	problem.CreatedAt = now
	problem.UpdatedAt = now

	tagsJSON, err := json.Marshal(problem.Tags)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		INSERT INTO problems (title, description, difficulty, category, tags, constraints, archive_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		problem.Category,
		tagsJSON,
		problem.Constraints,
		problem.ArchiveKey,
		problem.CreatedAt,
		problem.UpdatedAt,
	).Scan(&problem.ID); err != nil {
		return types.Problem{}, err
	}

	return problem, nil
}

func (r *ProblemRepository) Update(ctx context.Context, problem types.Problem) (types.Problem, error) {
	problem.UpdatedAt = time.Now()

	tagsJSON, err := json.Marshal(problem.Tags)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		UPDATE problems
		SET title = $1,
			description = $2,
			difficulty = $3,
			category = $4,
			tags = $5,
			constraints = $6,
			archive_key = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		problem.Category,
		tagsJSON,
		problem.Constraints,
		problem.ArchiveKey,
		problem.UpdatedAt,
		problem.ID,
	)
	if err != nil {
		return types.Problem{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Problem{}, err
	}
	if affected == 0 {
		return types.Problem{}, ErrNotFound
	}

	return problem, nil
}

func (r *ProblemRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM problems WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTestCases returns the full test case set of a problem in creation
// order. Ordering is stable so "first failing test case" is deterministic.
func (r *ProblemRepository) ListTestCases(ctx context.Context, problemID int) ([]types.TestCase, error) {
	const query = `
		SELECT id, problem_id, input_data, expected_output, is_sample, is_hidden, created_at
		FROM test_cases
		WHERE problem_id = $1
		ORDER BY id`
	return r.queryTestCases(ctx, query, problemID)
}

// ListSampleTestCases returns only the test cases visible to end users,
// in creation order.
func (r *ProblemRepository) ListSampleTestCases(ctx context.Context, problemID int) ([]types.TestCase, error) {
	const query = `
		SELECT id, problem_id, input_data, expected_output, is_sample, is_hidden, created_at
		FROM test_cases
		WHERE problem_id = $1 AND is_sample = TRUE
		ORDER BY id`
	return r.queryTestCases(ctx, query, problemID)
}

func (r *ProblemRepository) queryTestCases(ctx context.Context, query string, problemID int) ([]types.TestCase, error) {
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var testCases []types.TestCase
	for rows.Next() {
		var tc types.TestCase
		if err := rows.Scan(
			&tc.ID,
			&tc.ProblemID,
			&tc.InputData,
			&tc.ExpectedOutput,
			&tc.IsSample,
			&tc.IsHidden,
			&tc.CreatedAt,
		); err != nil {
			return nil, err
		}
		testCases = append(testCases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return testCases, nil
}

// ReplaceTestCases swaps out a problem's full test case set in a single
// transaction: either the new set replaces the old one completely or the
// old set stays. Inserts run in slice order, preserving creation order
// for evaluation.
func (r *ProblemRepository) ReplaceTestCases(ctx context.Context, problemID int, testCases []types.TestCase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const deleteQuery = `DELETE FROM test_cases WHERE problem_id = $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, problemID); err != nil {
		return err
	}

	const insertQuery = `
		INSERT INTO test_cases (problem_id, input_data, expected_output, is_sample, is_hidden, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	now := time.Now()
	for _, tc := range testCases {
		if _, err := tx.ExecContext(ctx, insertQuery, problemID, tc.InputData, tc.ExpectedOutput, tc.IsSample, tc.IsHidden, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecordSubmissionResult bumps the problem's submission counters and
// recomputes the acceptance rate in a single statement, so concurrent
// submissions for the same problem cannot lose updates.
func (r *ProblemRepository) RecordSubmissionResult(ctx context.Context, problemID int, accepted bool) error {
	const query = `
		UPDATE problems
		SET total_submissions = total_submissions + 1,
			total_accepted = total_accepted + CASE WHEN $2 THEN 1 ELSE 0 END,
			acceptance_rate = ROUND(
				(total_accepted + CASE WHEN $2 THEN 1 ELSE 0 END)::numeric
				/ (total_submissions + 1) * 100, 2),
			updated_at = now()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, problemID, accepted)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeAcceptanceRate rederives the acceptance rate from the stored
// counters. Idempotent; calling it with no new submissions in between
// yields the same rate.
func (r *ProblemRepository) RecomputeAcceptanceRate(ctx context.Context, problemID int) error {
	const query = `
		UPDATE problems
		SET acceptance_rate = CASE
				WHEN total_submissions = 0 THEN 0
				ELSE ROUND(total_accepted::numeric / total_submissions * 100, 2)
			END,
			updated_at = now()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, problemID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
