package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/codearena-oj/apiserver/internal/events"
	"github.com/codearena-oj/apiserver/internal/judge"
	"github.com/codearena-oj/apiserver/types"
)

// ErrNoTestCases is returned when a problem has no test cases to
// evaluate against. It is a caller error, not a server failure.
var ErrNoTestCases = errors.New("no test cases found for this problem")

// ErrNoSampleTestCases is returned when a problem has no sample test
// cases for a trial run.
var ErrNoSampleTestCases = errors.New("no sample test cases found for this problem")

// SubmissionRepository defines persistence operations for submissions.
type SubmissionRepository interface {
	Get(ctx context.Context, id int64) (types.Submission, error)
	Create(ctx context.Context, submission types.Submission) (types.Submission, error)
	Update(ctx context.Context, submission types.Submission) (types.Submission, error)
	ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Submission, error)
	ListByUserAndProblem(ctx context.Context, userID, problemID, offset, limit int) ([]types.Submission, error)
	Delete(ctx context.Context, id int64) error
}

// Executor runs code against a single test case on the remote
// execution service.
type Executor interface {
	Execute(ctx context.Context, code, language, stdin, expectedOutput string) (types.JudgeResult, error)
}

// SubmissionService encapsulates the submission lifecycle: creation,
// evaluation against a problem's test cases, sample runs, and the
// statistics updates that follow a terminal state.
type SubmissionService struct {
	repo     SubmissionRepository
	problems ProblemRepository
	users    UserRepository
	executor Executor
	events   events.Publisher
}

func NewSubmissionService(
	repo SubmissionRepository,
	problems ProblemRepository,
	users UserRepository,
	executor Executor,
	publisher events.Publisher,
) *SubmissionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SubmissionService{
		repo:     repo,
		problems: problems,
		users:    users,
		executor: executor,
		events:   publisher,
	}
}

func (s *SubmissionService) Get(ctx context.Context, id int64) (types.Submission, error) {
	return s.repo.Get(ctx, id)
}

func (s *SubmissionService) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Submission, error) {
	return s.repo.ListByUser(ctx, userID, offset, limit)
}

func (s *SubmissionService) ListByUserAndProblem(ctx context.Context, userID, problemID, offset, limit int) ([]types.Submission, error) {
	return s.repo.ListByUserAndProblem(ctx, userID, problemID, offset, limit)
}

// Create validates the request and persists a new submission in the
// Pending state. It does not start evaluation.
func (s *SubmissionService) Create(ctx context.Context, userID, problemID int, language, code string) (types.Submission, error) {
	if !judge.IsSupportedLanguage(language) {
		return types.Submission{}, fmt.Errorf("%w: %s", judge.ErrUnsupportedLanguage, language)
	}
	if _, err := s.problems.Get(ctx, problemID); err != nil {
		return types.Submission{}, err
	}

	return s.repo.Create(ctx, types.Submission{
		ProblemID: problemID,
		UserID:    userID,
		Code:      code,
		Language:  language,
		Status:    types.StatusPending,
	})
}

// Evaluate drives a submission from Pending to a terminal state. Test
// cases run in creation order; the first non-accepted result stops
// evaluation, becomes the submission's status, and is recorded as the
// failed test case. Executor failures never propagate as process-level
// errors: they terminate the submission as InternalError with the
// failure text, preserving any partially accumulated pass count.
//
// An empty test case set terminates the submission as InternalError
// without any remote call and returns ErrNoTestCases so the caller can
// respond with a client error.
func (s *SubmissionService) Evaluate(ctx context.Context, submissionID int64) (types.Submission, error) {
	submission, err := s.repo.Get(ctx, submissionID)
	if err != nil {
		return types.Submission{}, err
	}
	if submission.Status.Terminal() {
		return submission, nil
	}

	// Make the transition visible to concurrent readers before the
	// first remote round-trip.
	submission.Status = types.StatusProcessing
	submission, err = s.repo.Update(ctx, submission)
	if err != nil {
		return types.Submission{}, err
	}

	testCases, err := s.problems.ListTestCases(ctx, submission.ProblemID)
	if err != nil {
		submission.Status = types.StatusInternalError
		submission.ErrorMessage = fmt.Sprintf("failed to load test cases: %v", err)
		return s.finish(ctx, submission)
	}
	if len(testCases) == 0 {
		submission.Status = types.StatusInternalError
		submission.ErrorMessage = ErrNoTestCases.Error()
		if _, err := s.repo.Update(context.WithoutCancel(ctx), submission); err != nil {
			return types.Submission{}, err
		}
		return submission, ErrNoTestCases
	}

	submission.TotalTestCases = len(testCases)

	var last types.JudgeResult
	var execErr error
	for _, tc := range testCases {
		result, err := s.executor.Execute(ctx, submission.Code, submission.Language, tc.InputData, tc.ExpectedOutput)
		if err != nil {
			execErr = err
			break
		}
		last = result

		if result.Status == types.StatusAccepted {
			submission.PassedTestCases++
			continue
		}

		submission.Status = result.Status
		submission.ErrorMessage = result.ErrorMessage
		submission.FailedTestCase = &types.FailedTestcase{
			Input:    tc.InputData,
			Expected: tc.ExpectedOutput,
			Output:   result.Stdout,
			Error:    result.ErrorMessage,
			IsSample: tc.IsSample,
		}
		break
	}

	switch {
	case execErr != nil:
		submission.Status = types.StatusInternalError
		submission.ErrorMessage = execErr.Error()
	case submission.PassedTestCases == submission.TotalTestCases:
		submission.Status = types.StatusAccepted
	}

	// Runtime and memory come from the last evaluated test case,
	// whether that is the failing one or the final passing one.
	submission.RuntimeMs = int(last.TimeSec * 1000)
	submission.MemoryKB = last.MemoryKB

	return s.finish(ctx, submission)
}

// finish persists the terminal record, triggers the statistics
// recomputes, and publishes the judged event. Statistics and event
// failures are logged rather than surfaced so the caller always gets
// the finished submission back.
//
// The request context may already be dead by now, for example when the
// handler timeout fires mid-evaluation and the executor reports the
// cancellation. The terminal state must still reach the database, so
// everything here runs on a detached context.
func (s *SubmissionService) finish(ctx context.Context, submission types.Submission) (types.Submission, error) {
	ctx = context.WithoutCancel(ctx)

	submission, err := s.repo.Update(ctx, submission)
	if err != nil {
		return types.Submission{}, err
	}

	accepted := submission.Status == types.StatusAccepted
	if err := s.problems.RecordSubmissionResult(ctx, submission.ProblemID, accepted); err != nil {
		log.Printf("submission %d: failed to update problem stats: %v", submission.ID, err)
	}
	if accepted {
		if err := s.users.RecomputeStats(ctx, submission.UserID); err != nil {
			log.Printf("submission %d: failed to update user stats: %v", submission.ID, err)
		}
	}

	if err := s.events.SubmissionJudged(ctx, events.SubmissionJudged{
		SubmissionID:    submission.ID,
		ProblemID:       submission.ProblemID,
		UserID:          submission.UserID,
		Status:          submission.Status.String(),
		PassedTestCases: submission.PassedTestCases,
		TotalTestCases:  submission.TotalTestCases,
		JudgedAt:        submission.UpdatedAt,
	}); err != nil {
		log.Printf("submission %d: failed to publish judged event: %v", submission.ID, err)
	}

	return submission, nil
}

// RunSamples evaluates code against the sample test cases of a problem
// without persisting anything. Unlike Evaluate it never short-circuits:
// every sample case runs and gets its own result.
func (s *SubmissionService) RunSamples(ctx context.Context, problemID int, code, language string) ([]types.SampleResult, error) {
	if !judge.IsSupportedLanguage(language) {
		return nil, fmt.Errorf("%w: %s", judge.ErrUnsupportedLanguage, language)
	}
	if _, err := s.problems.Get(ctx, problemID); err != nil {
		return nil, err
	}

	samples, err := s.problems.ListSampleTestCases(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoSampleTestCases
	}

	results := make([]types.SampleResult, 0, len(samples))
	for _, tc := range samples {
		result, err := s.executor.Execute(ctx, code, language, tc.InputData, tc.ExpectedOutput)
		if err != nil {
			return nil, err
		}
		results = append(results, types.SampleResult{
			Input:          tc.InputData,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   result.Stdout,
			Status:         result.Status,
			RuntimeMs:      int(result.TimeSec * 1000),
			MemoryKB:       result.MemoryKB,
			Error:          result.ErrorMessage,
		})
	}
	return results, nil
}
