package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/codearena-oj/apiserver/internal/storage"
	"github.com/codearena-oj/apiserver/types"
)

// ErrNoArchive is returned when a problem has no retained test case
// archive to download.
var ErrNoArchive = errors.New("no test case archive stored for this problem")

// ProblemRepository defines persistence operations for problems and
// their test cases. ReplaceTestCases must be atomic: a failed swap may
// not leave the problem without test cases.
type ProblemRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Problem, int, error)
	Get(ctx context.Context, id int) (types.Problem, error)
	Create(ctx context.Context, problem types.Problem) (types.Problem, error)
	Update(ctx context.Context, problem types.Problem) (types.Problem, error)
	Delete(ctx context.Context, id int) error
	ListTestCases(ctx context.Context, problemID int) ([]types.TestCase, error)
	ListSampleTestCases(ctx context.Context, problemID int) ([]types.TestCase, error)
	ReplaceTestCases(ctx context.Context, problemID int, testCases []types.TestCase) error
	RecordSubmissionResult(ctx context.Context, problemID int, accepted bool) error
	RecomputeAcceptanceRate(ctx context.Context, problemID int) error
}

// ProblemService encapsulates problem use-cases.
type ProblemService struct {
	repo     ProblemRepository
	archives *storage.ArchiveStore
}

// NewProblemService constructs a ProblemService. The archive store may
// be nil when no object storage backend is configured; test case
// archives are then parsed but not retained.
func NewProblemService(repo ProblemRepository, archives *storage.ArchiveStore) *ProblemService {
	return &ProblemService{repo: repo, archives: archives}
}

func (s *ProblemService) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *ProblemService) Get(ctx context.Context, id int) (types.Problem, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProblemService) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	if !problem.Difficulty.Valid() {
		return types.Problem{}, fmt.Errorf("invalid difficulty: %q", problem.Difficulty)
	}
	return s.repo.Create(ctx, problem)
}

func (s *ProblemService) Update(ctx context.Context, problem types.Problem) (types.Problem, error) {
	if !problem.Difficulty.Valid() {
		return types.Problem{}, fmt.Errorf("invalid difficulty: %q", problem.Difficulty)
	}
	return s.repo.Update(ctx, problem)
}

// Delete removes a problem and, best effort, its retained test case
// archive. A failed archive cleanup is logged; the problem is gone
// either way.
func (s *ProblemService) Delete(ctx context.Context, id int) error {
	problem, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if s.archives != nil && problem.ArchiveKey != "" {
		if err := s.archives.DeleteArchive(ctx, problem.ArchiveKey); err != nil {
			log.Printf("problem %d: failed to delete archive %q: %v", id, problem.ArchiveKey, err)
		}
	}
	return nil
}

func (s *ProblemService) ListSampleTestCases(ctx context.Context, problemID int) ([]types.TestCase, error) {
	return s.repo.ListSampleTestCases(ctx, problemID)
}

func (s *ProblemService) ListTestCases(ctx context.Context, problemID int) ([]types.TestCase, error) {
	return s.repo.ListTestCases(ctx, problemID)
}

// ReplaceTestCases swaps out a problem's full test case set in one
// atomic operation. Order of the given slice becomes creation order,
// which fixes the evaluation order for all future submissions.
func (s *ProblemService) ReplaceTestCases(ctx context.Context, problemID int, testCases []types.TestCase) error {
	if _, err := s.repo.Get(ctx, problemID); err != nil {
		return err
	}
	return s.repo.ReplaceTestCases(ctx, problemID, testCases)
}

// ImportTestcaseArchive parses an uploaded tar.gz of numbered .in/.out
// pairs, replaces the problem's test cases with the parsed set, and
// retains the raw archive in object storage when a backend is
// configured. The first sampleCount cases become sample cases.
func (s *ProblemService) ImportTestcaseArchive(ctx context.Context, problemID int, filename string, data []byte, sampleCount int) ([]types.TestCase, error) {
	problem, err := s.repo.Get(ctx, problemID)
	if err != nil {
		return nil, err
	}

	testCases, sha, err := ParseTestcaseArchive(filename, data)
	if err != nil {
		return nil, err
	}

	for i := range testCases {
		if i < sampleCount {
			testCases[i].IsSample = true
		} else {
			testCases[i].IsHidden = true
		}
	}

	if err := s.repo.ReplaceTestCases(ctx, problemID, testCases); err != nil {
		return nil, err
	}

	if s.archives != nil {
		key, err := s.archives.PutArchive(ctx, problemID, sha, data)
		if err != nil {
			return nil, fmt.Errorf("failed to store archive: %w", err)
		}
		problem.ArchiveKey = key
		if _, err := s.repo.Update(ctx, problem); err != nil {
			return nil, err
		}
	}

	return testCases, nil
}

// DownloadTestcaseArchive returns the raw archive bytes retained for a
// problem, for re-import or audit.
func (s *ProblemService) DownloadTestcaseArchive(ctx context.Context, problemID int) ([]byte, error) {
	problem, err := s.repo.Get(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if s.archives == nil || problem.ArchiveKey == "" {
		return nil, ErrNoArchive
	}
	return s.archives.GetArchive(ctx, problem.ArchiveKey)
}
