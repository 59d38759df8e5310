package types

import (
	"encoding/json"
	"time"
)

// Submission represents a user's submission to a problem.
// It contains source code, execution metadata, and the final judging outcome.
type Submission struct {
	// ID is the unique identifier of the submission.
	ID int64 `json:"id" db:"id"`

	// ProblemID identifies the problem this submission is for.
	ProblemID int `json:"problem_id" db:"problem_id"`

	// UserID identifies the user who made the submission.
	UserID int `json:"user_id" db:"user_id"`

	// Code is the source code submitted by the user.
	Code string `json:"code" db:"code"`

	// Language is the identifier of the programming language used.
	Language string `json:"language" db:"language"`

	// Status is the current state of the submission in its lifecycle,
	// from Pending through Processing to a terminal verdict.
	Status Status `json:"status" db:"status"`

	// RuntimeMs is the execution time reported for the last evaluated
	// test case, expressed in milliseconds.
	RuntimeMs int `json:"runtime_ms" db:"runtime_ms"`

	// MemoryKB is the memory usage reported for the last evaluated
	// test case, expressed in kilobytes.
	MemoryKB int `json:"memory_kb" db:"memory_kb"`

	// ErrorMessage contains compiler or runtime error output, or the
	// text of an internal failure that aborted evaluation.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// PassedTestCases is the number of test cases that passed before
	// evaluation finished or stopped at the first failure.
	PassedTestCases int `json:"passed_test_cases" db:"passed_test_cases"`

	// TotalTestCases is the total number of test cases for the problem
	// at the time of evaluation.
	TotalTestCases int `json:"total_test_cases" db:"total_test_cases"`

	// FailedTestCase describes the first failing test case, if any.
	// It is nil for accepted submissions and for submissions that never
	// reached a test case.
	FailedTestCase *FailedTestcase `json:"failed_test_case,omitempty" db:"failed_test_case"`

	// CreatedAt is the timestamp when the submission was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp when the submission was last updated.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FailedTestcase captures the details of the first test case a
// submission failed on, for display to the submitting user.
type FailedTestcase struct {
	// Input is the input data of the failing test case.
	Input string `json:"input"`

	// Expected is the expected output of the failing test case.
	Expected string `json:"expected"`

	// Output is the output the user's program actually produced.
	Output string `json:"output"`

	// Error contains runtime or compiler error output, if any.
	Error string `json:"error,omitempty"`

	// IsSample indicates whether the failing test case is a sample
	// case visible to the user.
	IsSample bool `json:"is_sample"`
}

// JudgeResult is the classified outcome of running code against a
// single test case on the remote execution service. It is ephemeral
// and never persisted.
type JudgeResult struct {
	// Status is the domain verdict mapped from the remote status id.
	Status Status `json:"status"`

	// StatusID is the raw status id reported by the remote service.
	StatusID int `json:"status_id"`

	// StatusDescription is the remote service's human-readable
	// description of the status.
	StatusDescription string `json:"status_description"`

	// TimeSec is the execution time in seconds, as reported remotely.
	// Zero when the remote service did not report a time.
	TimeSec float64 `json:"time_sec"`

	// MemoryKB is the memory usage in kilobytes, as reported remotely.
	MemoryKB int `json:"memory_kb"`

	// Stdout is the decoded standard output of the program.
	Stdout string `json:"stdout"`

	// Stderr is the decoded standard error of the program.
	Stderr string `json:"stderr"`

	// CompileOutput is the decoded compiler output, if compilation ran.
	CompileOutput string `json:"compile_output"`

	// ErrorMessage is stderr when non-empty, otherwise the compile
	// output, otherwise empty.
	ErrorMessage string `json:"error_message"`
}

// SampleResult is the outcome of running code against one sample test
// case without creating a submission.
type SampleResult struct {
	// Input is the sample test case input.
	Input string `json:"input"`

	// ExpectedOutput is the sample test case's expected output.
	ExpectedOutput string `json:"expected_output"`

	// ActualOutput is the output the user's program produced.
	ActualOutput string `json:"actual_output"`

	// Status is the verdict for this sample test case.
	Status Status `json:"status"`

	// RuntimeMs is the execution time in milliseconds.
	RuntimeMs int `json:"runtime_ms"`

	// MemoryKB is the memory usage in kilobytes.
	MemoryKB int `json:"memory_kb"`

	// Error contains runtime or compiler error output, if any.
	Error string `json:"error,omitempty"`
}

// Status represents the state of a submission or the verdict of a
// single test case.
type Status int

// Supported status values.
const (
	// StatusPending indicates the submission has been received
	// but has not started judging yet.
	StatusPending Status = iota

	// StatusProcessing indicates the submission is currently being judged.
	StatusProcessing

	// StatusAccepted indicates the submission passed all test cases.
	StatusAccepted

	// StatusWrongAnswer indicates the submission produced incorrect output.
	StatusWrongAnswer

	// StatusTimeLimitExceeded indicates the submission exceeded the time limit.
	StatusTimeLimitExceeded

	// StatusMemoryLimitExceeded indicates the submission exceeded the memory limit.
	StatusMemoryLimitExceeded

	// StatusRuntimeError indicates a runtime error occurred during execution.
	StatusRuntimeError

	// StatusCompilationError indicates the submission failed to compile.
	StatusCompilationError

	// StatusInternalError indicates an internal failure in the judging
	// pipeline, including unrecognized remote statuses.
	StatusInternalError
)

// String returns the human-readable representation of the status used
// in API responses and logs.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusProcessing:
		return "Processing"
	case StatusAccepted:
		return "Accepted"
	case StatusWrongAnswer:
		return "Wrong Answer"
	case StatusTimeLimitExceeded:
		return "Time Limit Exceeded"
	case StatusMemoryLimitExceeded:
		return "Memory Limit Exceeded"
	case StatusRuntimeError:
		return "Runtime Error"
	case StatusCompilationError:
		return "Compilation Error"
	case StatusInternalError:
		return "Internal Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further automatic transition occurs
// from this status.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusProcessing
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
