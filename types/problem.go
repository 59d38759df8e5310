package types

import "time"

// Difficulty classifies how hard a problem is. It also determines the
// points awarded to a user the first time they solve the problem.
type Difficulty string

// Supported difficulty levels.
const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Points returns the reward for solving a problem of this difficulty.
func (d Difficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	default:
		return 0
	}
}

// Valid reports whether the difficulty is one of the supported levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Problem represents a coding problem in the Code Arena system.
// It contains the statement, metadata, and derived acceptance statistics.
type Problem struct {
	// ID is the unique identifier of the problem.
	ID int `json:"id" db:"id"`

	// Title is the human-readable name of the problem.
	Title string `json:"title" db:"title"`

	// Description contains the full problem statement, including
	// input/output specifications and examples.
	Description string `json:"description" db:"description"`

	// Difficulty indicates the relative difficulty level of the problem.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// Category is the topic the problem belongs to (e.g. "arrays").
	Category string `json:"category" db:"category"`

	// Tags are free-form labels associated with the problem, used for
	// categorization, filtering, and search.
	Tags []string `json:"tags" db:"tags"`

	// Constraints describes the bounds on the problem's input.
	Constraints string `json:"constraints,omitempty" db:"constraints"`

	// AcceptanceRate is the percentage of submissions to this problem
	// that were accepted, rounded to two decimals. Derived; recomputed
	// whenever a submission reaches a terminal state.
	AcceptanceRate float64 `json:"acceptance_rate" db:"acceptance_rate"`

	// TotalSubmissions is the number of submissions that reached a
	// terminal state for this problem.
	TotalSubmissions int `json:"total_submissions" db:"total_submissions"`

	// TotalAccepted is the number of accepted submissions for this problem.
	TotalAccepted int `json:"total_accepted" db:"total_accepted"`

	// ArchiveKey is the object storage key of the most recently
	// uploaded test case archive, when one exists.
	ArchiveKey string `json:"-" db:"archive_key"`

	// CreatedAt is the timestamp at which the problem was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the problem.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TestCase represents a single input/output pair used to evaluate a
// submission. Test cases for a problem are evaluated in creation order,
// which determines which failure is reported first.
type TestCase struct {
	// ID is the unique identifier of the test case.
	ID int `json:"id" db:"id"`

	// ProblemID is the identifier of the problem this test case belongs to.
	ProblemID int `json:"problem_id" db:"problem_id"`

	// InputData is the input provided to the user's program.
	InputData string `json:"input_data" db:"input_data"`

	// ExpectedOutput is the output produced by a correct solution.
	ExpectedOutput string `json:"expected_output" db:"expected_output"`

	// IsSample indicates whether this test case is visible to users
	// and included in non-persisted trial runs.
	IsSample bool `json:"is_sample" db:"is_sample"`

	// IsHidden indicates whether this test case is excluded from
	// sample-only views. Hidden test cases still participate in full
	// evaluation.
	IsHidden bool `json:"is_hidden" db:"is_hidden"`

	// CreatedAt is the timestamp at which the test case was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
