package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/codearena-oj/apiserver/types"
)

// SubmissionRepository handles persistence for submissions.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, problem_id, user_id, code, language, status, runtime_ms,
		       memory_kb, error_message, passed_test_cases, total_test_cases,
		       failed_test_case, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (types.Submission, error) {
	var submission types.Submission
	var failedJSON []byte
	err := row.Scan(
		&submission.ID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.Code,
		&submission.Language,
		&submission.Status,
		&submission.RuntimeMs,
		&submission.MemoryKB,
		&submission.ErrorMessage,
		&submission.PassedTestCases,
		&submission.TotalTestCases,
		&failedJSON,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)
	if err != nil {
		return types.Submission{}, err
	}
	if len(failedJSON) > 0 {
		_ = json.Unmarshal(failedJSON, &submission.FailedTestCase)
	}
	return submission, nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id int64) (types.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE id = $1`
	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}
	return submission, nil
}

func (r *SubmissionRepository) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	now := time.Now()
	submission.CreatedAt = now
	submission.UpdatedAt = now

	failedJSON, err := marshalFailedTestcase(submission.FailedTestCase)
	if err != nil {
		return types.Submission{}, err
	}

	const query = `
		INSERT INTO submissions (
			problem_id, user_id, code, language, status, runtime_ms,
			memory_kb, error_message, passed_test_cases, total_test_cases,
			failed_test_case, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		submission.ProblemID,
		submission.UserID,
		submission.Code,
		submission.Language,
		submission.Status,
		submission.RuntimeMs,
		submission.MemoryKB,
		submission.ErrorMessage,
		submission.PassedTestCases,
		submission.TotalTestCases,
		failedJSON,
		submission.CreatedAt,
		submission.UpdatedAt,
	).Scan(&submission.ID); err != nil {
		return types.Submission{}, err
	}

	return submission, nil
}

// Update persists the mutable lifecycle fields of a submission. Called
// once when evaluation transitions to Processing and once with the
// finished record.
func (r *SubmissionRepository) Update(ctx context.Context, submission types.Submission) (types.Submission, error) {
	submission.UpdatedAt = time.Now()

	failedJSON, err := marshalFailedTestcase(submission.FailedTestCase)
	if err != nil {
		return types.Submission{}, err
	}

	const query = `
		UPDATE submissions
		SET status = $1,
			runtime_ms = $2,
			memory_kb = $3,
			error_message = $4,
			passed_test_cases = $5,
			total_test_cases = $6,
			failed_test_case = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		submission.Status,
		submission.RuntimeMs,
		submission.MemoryKB,
		submission.ErrorMessage,
		submission.PassedTestCases,
		submission.TotalTestCases,
		failedJSON,
		submission.UpdatedAt,
		submission.ID,
	)
	if err != nil {
		return types.Submission{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Submission{}, err
	}
	if affected == 0 {
		return types.Submission{}, ErrNotFound
	}
	return submission, nil
}

// ListByUser returns a user's submissions, newest first.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`
	return r.querySubmissions(ctx, query, userID, offset, limit)
}

// ListByUserAndProblem returns a user's submissions for one problem,
// newest first.
func (r *SubmissionRepository) ListByUserAndProblem(ctx context.Context, userID, problemID, offset, limit int) ([]types.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND problem_id = $2
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4`
	return r.querySubmissions(ctx, query, userID, problemID, offset, limit)
}

func (r *SubmissionRepository) querySubmissions(ctx context.Context, query string, args ...any) ([]types.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []types.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *SubmissionRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM submissions WHERE id = $1`
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

func marshalFailedTestcase(failed *types.FailedTestcase) ([]byte, error) {
	if failed == nil {
		return nil, nil
	}
	return json.Marshal(failed)
}
