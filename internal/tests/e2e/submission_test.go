//go:build e2e

package e2e

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codearena-oj/apiserver/config"
	"github.com/codearena-oj/apiserver/internal/db"
	"github.com/codearena-oj/apiserver/internal/server"
	"github.com/codearena-oj/apiserver/internal/store"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort    = 18080
	fakeJudgePort = 12358
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	fakeJudge := startFakeJudge()

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = fakeJudge.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = fakeJudge.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = fakeJudge.Close()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestSubmissionLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("admin_%d", time.Now().UnixNano())

	token, err := registerUser(t, baseURL, username, "testpass123!")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if err := promoteUserToAdmin(username); err != nil {
		t.Fatalf("promote user: %v", err)
	}

	problemID, err := createProblem(t, baseURL, token)
	if err != nil {
		t.Fatalf("create problem: %v", err)
	}

	if err := uploadArchive(t, baseURL, token, problemID); err != nil {
		t.Fatalf("upload archive: %v", err)
	}

	submission, err := submitSolution(t, baseURL, token, problemID)
	if err != nil {
		t.Fatalf("submit solution: %v", err)
	}
	if submission.Status != "Accepted" {
		t.Fatalf("submission status = %q, want Accepted", submission.Status)
	}
	if submission.PassedTestCases != 2 || submission.TotalTestCases != 2 {
		t.Fatalf("passed/total = %d/%d, want 2/2", submission.PassedTestCases, submission.TotalTestCases)
	}

	problem, err := getProblem(t, baseURL, problemID)
	if err != nil {
		t.Fatalf("get problem: %v", err)
	}
	if problem.TotalSubmissions != 1 || problem.TotalAccepted != 1 {
		t.Fatalf("problem stats = %d/%d, want 1/1", problem.TotalAccepted, problem.TotalSubmissions)
	}
	if problem.AcceptanceRate != 100 {
		t.Fatalf("acceptance rate = %v, want 100", problem.AcceptanceRate)
	}

	entries, err := leaderboard(baseURL)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Username == username {
			found = true
			if entry.SolvedCount != 1 || entry.Points != 10 {
				t.Fatalf("leaderboard entry = %+v, want 1 solved / 10 points", entry)
			}
		}
	}
	if !found {
		t.Fatal("submitting user missing from leaderboard")
	}
}

func TestUserStatsCountDistinctProblems(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("solver_%d", time.Now().UnixNano())

	token, err := registerUser(t, baseURL, username, "testpass123!")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if err := promoteUserToAdmin(username); err != nil {
		t.Fatalf("promote user: %v", err)
	}

	easyID, err := createProblem(t, baseURL, token)
	if err != nil {
		t.Fatalf("create easy problem: %v", err)
	}
	if err := uploadArchive(t, baseURL, token, easyID); err != nil {
		t.Fatalf("upload archive: %v", err)
	}

	hardID, err := createHardProblem(t, baseURL, token)
	if err != nil {
		t.Fatalf("create hard problem: %v", err)
	}
	if err := uploadArchive(t, baseURL, token, hardID); err != nil {
		t.Fatalf("upload archive: %v", err)
	}

	for _, problemID := range []int{easyID, hardID} {
		submission, err := submitSolution(t, baseURL, token, problemID)
		if err != nil {
			t.Fatalf("submit to problem %d: %v", problemID, err)
		}
		if submission.Status != "Accepted" {
			t.Fatalf("submission status = %q, want Accepted", submission.Status)
		}
	}

	if err := checkUserStats(baseURL, username, 2, 40); err != nil {
		t.Fatalf("after easy+hard: %v", err)
	}

	// A second accepted submission on an already solved problem must not
	// change solved count or points.
	if _, err := submitSolution(t, baseURL, token, easyID); err != nil {
		t.Fatalf("resubmit easy: %v", err)
	}
	if err := checkUserStats(baseURL, username, 2, 40); err != nil {
		t.Fatalf("after resubmit: %v", err)
	}

	problem, err := getProblem(t, baseURL, easyID)
	if err != nil {
		t.Fatalf("get easy problem: %v", err)
	}
	if problem.TotalSubmissions != 2 || problem.TotalAccepted != 2 {
		t.Fatalf("easy problem stats = %d/%d, want 2/2", problem.TotalAccepted, problem.TotalSubmissions)
	}

	// Recomputing the acceptance rate with no new submissions must not
	// change it.
	before := problem.AcceptanceRate
	if err := recomputeAcceptanceRate(easyID); err != nil {
		t.Fatalf("recompute acceptance rate: %v", err)
	}
	problem, err = getProblem(t, baseURL, easyID)
	if err != nil {
		t.Fatalf("get easy problem: %v", err)
	}
	if problem.AcceptanceRate != before {
		t.Fatalf("acceptance rate changed on recompute: %v -> %v", before, problem.AcceptanceRate)
	}
}

func checkUserStats(baseURL, username string, wantSolved, wantPoints int) error {
	entries, err := leaderboard(baseURL)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Username == username {
			if entry.SolvedCount != wantSolved || entry.Points != wantPoints {
				return fmt.Errorf("stats = %d solved / %d points, want %d / %d",
					entry.SolvedCount, entry.Points, wantSolved, wantPoints)
			}
			return nil
		}
	}
	return fmt.Errorf("user %s missing from leaderboard", username)
}

func recomputeAcceptanceRate(problemID int) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildDSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return store.NewProblemRepository(conn).RecomputeAcceptanceRate(ctx, problemID)
}

type submissionResponse struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	PassedTestCases int    `json:"passed_test_cases"`
	TotalTestCases  int    `json:"total_test_cases"`
}

type problemResponse struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	AcceptanceRate   float64 `json:"acceptance_rate"`
	TotalSubmissions int     `json:"total_submissions"`
	TotalAccepted    int     `json:"total_accepted"`
}

type leaderboardEntry struct {
	Username    string `json:"username"`
	SolvedCount int    `json:"solved_count"`
	Points      int    `json:"points"`
}

type authResponse struct {
	Token string `json:"token"`
}

func registerUser(t *testing.T, baseURL, username, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"username": username,
		"email":    fmt.Sprintf("%s@example.com", username),
		"name":     "Test Admin",
		"password": password,
	}
	var parsed authResponse
	if err := postJSON(baseURL+"/auth/register", "", payload, http.StatusCreated, &parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in register response")
	}
	return parsed.Token, nil
}

func promoteUserToAdmin(username string) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildDSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET role = 'admin', updated_at = NOW() WHERE username = $1", username)
	return err
}

func createProblem(t *testing.T, baseURL, token string) (int, error) {
	t.Helper()

	payload := map[string]any{
		"title":       "Sum Two Numbers",
		"description": "Read two integers and print their sum.",
		"difficulty":  "Easy",
		"category":    "math",
		"tags":        []string{"math", "io"},
		"constraints": "1 <= a, b <= 10^9",
	}
	var parsed problemResponse
	if err := postJSON(baseURL+"/problems", token, payload, http.StatusCreated, &parsed); err != nil {
		return 0, err
	}
	if parsed.ID == 0 {
		return 0, fmt.Errorf("problem id not set")
	}
	return parsed.ID, nil
}

func createHardProblem(t *testing.T, baseURL, token string) (int, error) {
	t.Helper()

	payload := map[string]any{
		"title":       "Sum Two Numbers, But Harder",
		"description": "Read two integers and print their sum quickly.",
		"difficulty":  "Hard",
		"category":    "math",
		"tags":        []string{"math"},
		"constraints": "1 <= a, b <= 10^18",
	}
	var parsed problemResponse
	if err := postJSON(baseURL+"/problems", token, payload, http.StatusCreated, &parsed); err != nil {
		return 0, err
	}
	return parsed.ID, nil
}

func uploadArchive(t *testing.T, baseURL, token string, problemID int) error {
	t.Helper()

	archive, err := buildTestcaseArchive()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("sample_count", "1")
	part, err := writer.CreateFormFile("archive", "testcases.tar.gz")
	if err != nil {
		return err
	}
	if _, err := part.Write(archive); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/problems/%d/testcases/archive", baseURL, problemID)
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload archive status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func submitSolution(t *testing.T, baseURL, token string, problemID int) (submissionResponse, error) {
	t.Helper()

	payload := map[string]any{
		"problem_id": problemID,
		"language":   "python",
		"code":       "a, b = map(int, input().split())\nprint(a + b)\n",
	}
	var parsed submissionResponse
	if err := postJSON(baseURL+"/submissions", token, payload, http.StatusCreated, &parsed); err != nil {
		return submissionResponse{}, err
	}
	return parsed, nil
}

func getProblem(t *testing.T, baseURL string, id int) (problemResponse, error) {
	t.Helper()

	var parsed problemResponse
	if err := getJSON(fmt.Sprintf("%s/problems/%d", baseURL, id), &parsed); err != nil {
		return problemResponse{}, err
	}
	return parsed, nil
}

func leaderboard(baseURL string) ([]leaderboardEntry, error) {
	var parsed []leaderboardEntry
	if err := getJSON(baseURL+"/users/leaderboard?limit=100", &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func postJSON(url, token string, payload any, wantStatus int, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func buildTestcaseArchive() ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	files := []struct{ name, content string }{
		{"1.in", "1 2\n"},
		{"1.out", "3\n"},
		{"2.in", "10 20\n"},
		{"2.out", "30\n"},
	}
	for _, f := range files {
		header := &tar.Header{Name: f.name, Mode: 0o644, Size: int64(len(f.content))}
		if err := tw.WriteHeader(header); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(f.content)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// startFakeJudge serves a minimal stand-in for the remote execution
// service that accepts every submission.
func startFakeJudge() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": fmt.Sprintf("tok-%d", time.Now().UnixNano())})
	})
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"id": 3, "description": "Accepted"},
			"time":   "0.01",
			"memory": 1024,
			"stdout": base64.StdEncoding.EncodeToString([]byte("ok\n")),
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", fakeJudgePort),
		Handler: mux,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildDSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.BuildDSN(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "codearena")
	_ = os.Setenv("DB_PASSWORD", "codearena")
	_ = os.Setenv("DB_NAME", "codearena")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("JUDGE_API_URL", fmt.Sprintf("http://localhost:%d", fakeJudgePort))
	_ = os.Setenv("JUDGE_POLL_INTERVAL_MS", "50")
	_ = os.Setenv("EVENTS_BACKEND", "none")
	_ = os.Setenv("STORAGE_BACKEND", "none")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
