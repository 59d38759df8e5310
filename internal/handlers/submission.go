package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/codearena-oj/apiserver/internal/judge"
	"github.com/codearena-oj/apiserver/internal/services"
	"github.com/codearena-oj/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// SubmissionHandler provides HTTP handlers for the submission lifecycle.
type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

// NewSubmissionHandler constructs a handler with the provided service.
func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// SubmissionRouter registers submission routes. All routes require
// authentication.
func SubmissionRouter(
	r chi.Router,
	submissionService *services.SubmissionService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewSubmissionHandler(submissionService)

	r.Use(authMiddleware)
	r.Post("/", handler.CreateSubmission)
	r.Post("/run", handler.RunSamples)
	r.Get("/mine", handler.ListMySubmissions)
	r.Get("/{submissionID}", handler.GetSubmission)
}

// SubmissionRequest is the JSON body for creating a submission or
// running samples.
type SubmissionRequest struct {
	ProblemID int    `json:"problem_id"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// CreateSubmission persists a new submission and evaluates it
// synchronously, returning the terminal record.
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := decodeSubmissionRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submission, err := h.submissionService.Create(r.Context(), userID, req.ProblemID, req.Language, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, judge.ErrUnsupportedLanguage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "problem not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create submission")
		}
		return
	}

	submission, err = h.submissionService.Evaluate(r.Context(), submission.ID)
	if err != nil {
		if errors.Is(err, services.ErrNoTestCases) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to evaluate submission")
		return
	}

	writeJSON(w, http.StatusCreated, submission)
}

// RunSamples executes code against a problem's sample test cases
// without recording a submission.
func (h *SubmissionHandler) RunSamples(w http.ResponseWriter, r *http.Request) {
	if _, err := userIDFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := decodeSubmissionRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.submissionService.RunSamples(r.Context(), req.ProblemID, req.Code, req.Language)
	if err != nil {
		switch {
		case errors.Is(err, judge.ErrUnsupportedLanguage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrNoSampleTestCases):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "problem not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to run samples")
		}
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// GetSubmission returns a submission by id. Users can only read their
// own submissions.
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "submissionID"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid submission id")
		return
	}

	submission, err := h.submissionService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "submission not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch submission")
		return
	}

	if submission.UserID != userID {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	writeJSON(w, http.StatusOK, submission)
}

// ListMySubmissions returns the caller's submissions, newest first,
// optionally filtered by problem id.
func (h *SubmissionHandler) ListMySubmissions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	_, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rawProblemID := r.URL.Query().Get("problem_id")
	if rawProblemID == "" {
		submissions, err := h.submissionService.ListByUser(r.Context(), userID, offset, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list submissions")
			return
		}
		writeJSON(w, http.StatusOK, submissions)
		return
	}

	problemID, err := strconv.Atoi(rawProblemID)
	if err != nil || problemID < 1 {
		writeError(w, http.StatusBadRequest, "invalid problem id")
		return
	}

	submissions, err := h.submissionService.ListByUserAndProblem(r.Context(), userID, problemID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	writeJSON(w, http.StatusOK, submissions)
}

func decodeSubmissionRequest(r *http.Request) (SubmissionRequest, error) {
	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return SubmissionRequest{}, errors.New("invalid request")
	}
	if req.ProblemID < 1 {
		return SubmissionRequest{}, errors.New("problem_id is required")
	}
	if req.Language == "" {
		return SubmissionRequest{}, errors.New("language is required")
	}
	if req.Code == "" {
		return SubmissionRequest{}, errors.New("code is required")
	}
	return req, nil
}
