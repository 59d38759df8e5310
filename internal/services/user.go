package services

import (
	"context"

	"github.com/codearena-oj/apiserver/types"
)

const (
	leaderboardDefaultLimit = 20
	leaderboardMaxLimit     = 100
)

// UserRepository defines persistence operations for users, including
// the derived-statistics recompute run after accepted submissions.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
	RecomputeStats(ctx context.Context, userID int) error
	Leaderboard(ctx context.Context, offset, limit int) ([]types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// Leaderboard lists users ranked by points. The limit is clamped to a
// sane window.
func (s *UserService) Leaderboard(ctx context.Context, offset, limit int) ([]types.User, error) {
	if limit <= 0 {
		limit = leaderboardDefaultLimit
	}
	if limit > leaderboardMaxLimit {
		limit = leaderboardMaxLimit
	}
	return s.repo.Leaderboard(ctx, offset, limit)
}
