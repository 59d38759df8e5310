package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/codearena-oj/apiserver/internal/services"
	"github.com/codearena-oj/apiserver/internal/store"
	"github.com/codearena-oj/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPage        = 1
	defaultLimit       = 20
	maxLimit           = 100
	maxMultipartMemory = 32 << 20
	maxArchiveBytes    = 256 << 20
	adminRole          = "admin"
	formFieldArchive   = "archive"
	formFieldSamples   = "sample_count"
)

// ProblemHandler provides HTTP handlers for problems and their test cases.
type ProblemHandler struct {
	problemService *services.ProblemService
	userService    *services.UserService
}

// NewProblemHandler constructs a handler with the provided services.
func NewProblemHandler(problemService *services.ProblemService, userService *services.UserService) *ProblemHandler {
	return &ProblemHandler{
		problemService: problemService,
		userService:    userService,
	}
}

// ProblemRouter registers problem routes on the given router.
func ProblemRouter(
	r chi.Router,
	problemService *services.ProblemService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProblemHandler(problemService, userService)

	r.Get("/", handler.ListProblems)
	r.With(authMiddleware, handler.requireAdmin).Post("/", handler.CreateProblem)
	r.Route("/{problemID}", func(r chi.Router) {
		r.Get("/", handler.GetProblem)
		r.Get("/testcases", handler.ListSampleTestCases)
		r.With(authMiddleware, handler.requireAdmin).Put("/", handler.UpdateProblem)
		r.With(authMiddleware, handler.requireAdmin).Delete("/", handler.DeleteProblem)
		r.With(authMiddleware, handler.requireAdmin).Get("/testcases/all", handler.ListAllTestCases)
		r.With(authMiddleware, handler.requireAdmin).Put("/testcases", handler.ReplaceTestCases)
		r.With(authMiddleware, handler.requireAdmin).Post("/testcases/archive", handler.UploadTestcaseArchive)
		r.With(authMiddleware, handler.requireAdmin).Get("/testcases/archive", handler.DownloadTestcaseArchive)
	})
}

// requireAdmin allows only users with the admin role through. It must
// run after the auth middleware.
func (h *ProblemHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := h.userService.GetByID(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Role != adminRole {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProblemListResponse is the paginated problem listing body.
type ProblemListResponse struct {
	Items []types.Problem `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func (h *ProblemHandler) ListProblems(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.problemService.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list problems")
		return
	}

	resp := ProblemListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch problem")
		return
	}

	writeJSON(w, http.StatusOK, problem)
}

// ProblemRequest is the JSON body for creating or updating a problem.
type ProblemRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Constraints string   `json:"constraints"`
}

func (h *ProblemHandler) CreateProblem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProblemRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.Create(r.Context(), types.Problem{
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  types.Difficulty(req.Difficulty),
		Category:    req.Category,
		Tags:        req.Tags,
		Constraints: req.Constraints,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, problem)
}

func (h *ProblemHandler) UpdateProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeProblemRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.problemService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch problem")
		return
	}

	existing.Title = req.Title
	existing.Description = req.Description
	existing.Difficulty = types.Difficulty(req.Difficulty)
	existing.Category = req.Category
	existing.Tags = req.Tags
	existing.Constraints = req.Constraints

	updated, err := h.problemService.Update(r.Context(), existing)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProblemHandler) DeleteProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.problemService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete problem")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSampleTestCases returns only the test cases visible to end users.
func (h *ProblemHandler) ListSampleTestCases(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.problemService.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch problem")
		return
	}

	samples, err := h.problemService.ListSampleTestCases(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	writeJSON(w, http.StatusOK, samples)
}

// ListAllTestCases returns the full test case set including hidden
// cases. Admin only.
func (h *ProblemHandler) ListAllTestCases(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.problemService.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch problem")
		return
	}

	testCases, err := h.problemService.ListTestCases(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list test cases")
		return
	}

	writeJSON(w, http.StatusOK, testCases)
}

// TestCaseRequest is one entry of a full test case replacement.
type TestCaseRequest struct {
	InputData      string `json:"input_data"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
	IsHidden       bool   `json:"is_hidden"`
}

func (h *ProblemHandler) ReplaceTestCases(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var reqs []TestCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one test case is required")
		return
	}

	testCases := make([]types.TestCase, 0, len(reqs))
	for _, req := range reqs {
		testCases = append(testCases, types.TestCase{
			InputData:      req.InputData,
			ExpectedOutput: req.ExpectedOutput,
			IsSample:       req.IsSample,
			IsHidden:       req.IsHidden,
		})
	}

	if err := h.problemService.ReplaceTestCases(r.Context(), id, testCases); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to replace test cases")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadTestcaseArchive replaces a problem's test cases from an
// uploaded tar.gz of numbered .in/.out pairs.
func (h *ProblemHandler) UploadTestcaseArchive(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldArchive)
	if err != nil {
		writeError(w, http.StatusBadRequest, "archive file is required")
		return
	}
	defer file.Close()

	if header.Size > maxArchiveBytes {
		writeError(w, http.StatusBadRequest, "archive too large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxArchiveBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read archive")
		return
	}
	if len(data) > maxArchiveBytes {
		writeError(w, http.StatusBadRequest, "archive too large")
		return
	}

	sampleCount := 0
	if raw := strings.TrimSpace(r.FormValue(formFieldSamples)); raw != "" {
		sampleCount, err = strconv.Atoi(raw)
		if err != nil || sampleCount < 0 {
			writeError(w, http.StatusBadRequest, "invalid sample_count")
			return
		}
	}

	testCases, err := h.problemService.ImportTestcaseArchive(r.Context(), id, header.Filename, data, sampleCount)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int{"imported": len(testCases)})
}

// DownloadTestcaseArchive serves the retained archive of a problem's
// test cases. Admin only.
func (h *ProblemHandler) DownloadTestcaseArchive(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.problemService.DownloadTestcaseArchive(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "problem not found")
		case errors.Is(err, services.ErrNoArchive):
			writeError(w, http.StatusNotFound, "no archive stored for this problem")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch archive")
		}
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"problem-%d-testcases.tar.gz\"", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeProblemRequest(r *http.Request) (ProblemRequest, error) {
	var req ProblemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ProblemRequest{}, errors.New("invalid request")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return ProblemRequest{}, errors.New("title is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return ProblemRequest{}, errors.New("description is required")
	}
	return req, nil
}

func parseProblemID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "problemID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid problem id")
	}
	return id, nil
}
