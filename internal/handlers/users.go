package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/codearena-oj/apiserver/internal/services"
	"github.com/codearena-oj/apiserver/internal/store"
	"github.com/codearena-oj/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler provides public user endpoints.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.Get("/leaderboard", handler.Leaderboard)
	r.Get("/{userID}", handler.GetUser)
}

// PublicUser is the profile shape exposed to other users.
type PublicUser struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	SolvedCount int    `json:"solved_count"`
	Points      int    `json:"points"`
}

func publicUser(user types.User) PublicUser {
	return PublicUser{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		SolvedCount: user.SolvedCount,
		Points:      user.Points,
	}
}

// Leaderboard returns users ranked by points, then solved count.
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	_, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := h.userService.Leaderboard(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	entries := make([]PublicUser, 0, len(users))
	for _, user := range users {
		entries = append(entries, publicUser(user))
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetUser returns a public profile by id.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, publicUser(user))
}
