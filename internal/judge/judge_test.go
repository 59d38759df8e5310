package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/codearena-oj/apiserver/config"
	"github.com/codearena-oj/apiserver/types"
)

// fakeJudge stands in for the remote execution service. It hands out a
// fixed token on submit and serves a scripted sequence of results on
// fetch.
type fakeJudge struct {
	mu          sync.Mutex
	token       string
	results     []map[string]any
	fetchCalls  int
	submitCalls int
	lastSubmit  map[string]any
}

func (f *fakeJudge) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.submitCalls++
		_ = json.NewDecoder(r.Body).Decode(&f.lastSubmit)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": f.token})
	})
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		idx := f.fetchCalls
		if idx >= len(f.results) {
			idx = len(f.results) - 1
		}
		f.fetchCalls++
		_ = json.NewEncoder(w).Encode(f.results[idx])
	})
	return mux
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func terminalResult(statusID int, description, stdout string) map[string]any {
	return map[string]any{
		"status": map[string]any{"id": statusID, "description": description},
		"time":   "0.021",
		"memory": 3456,
		"stdout": encode(stdout),
	}
}

func queuedResult() map[string]any {
	return map[string]any{
		"status": map[string]any{"id": 2, "description": "Processing"},
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.JudgeConfig{
		BaseURL:      baseURL,
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	})
}

func TestExecuteAccepted(t *testing.T) {
	fake := &fakeJudge{
		token:   "tok-1",
		results: []map[string]any{queuedResult(), terminalResult(3, "Accepted", "42\n")},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.Execute(context.Background(), "print(42)", "python", "", "42\n")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.Status != types.StatusAccepted {
		t.Errorf("status = %v, want Accepted", result.Status)
	}
	if result.Stdout != "42\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "42\n")
	}
	if result.TimeSec != 0.021 {
		t.Errorf("time = %v, want 0.021", result.TimeSec)
	}
	if result.MemoryKB != 3456 {
		t.Errorf("memory = %d, want 3456", result.MemoryKB)
	}
	if fake.fetchCalls != 2 {
		t.Errorf("fetch calls = %d, want 2", fake.fetchCalls)
	}
}

func TestExecuteEncodesPayload(t *testing.T) {
	fake := &fakeJudge{
		token:   "tok-2",
		results: []map[string]any{terminalResult(3, "Accepted", "")},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.Execute(context.Background(), "code", "cpp", "input", "output"); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if got := fake.lastSubmit["source_code"]; got != encode("code") {
		t.Errorf("source_code = %v, want base64 of %q", got, "code")
	}
	if got := fake.lastSubmit["stdin"]; got != encode("input") {
		t.Errorf("stdin = %v, want base64 of %q", got, "input")
	}
	if got := fake.lastSubmit["expected_output"]; got != encode("output") {
		t.Errorf("expected_output = %v, want base64 of %q", got, "output")
	}
	if got := fake.lastSubmit["language_id"]; got != float64(54) {
		t.Errorf("language_id = %v, want 54", got)
	}
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	fake := &fakeJudge{token: "tok", results: []map[string]any{terminalResult(3, "Accepted", "")}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Execute(context.Background(), "code", "fortran", "", "")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("error = %v, want ErrUnsupportedLanguage", err)
	}
	if fake.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", fake.submitCalls)
	}
}

func TestExecutePollTimeout(t *testing.T) {
	fake := &fakeJudge{
		token:   "tok-3",
		results: []map[string]any{queuedResult()},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Execute(context.Background(), "while True: pass", "python", "", "")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("error = %v, want ErrPollTimeout", err)
	}
	if fake.fetchCalls != 3 {
		t.Errorf("fetch calls = %d, want 3", fake.fetchCalls)
	}
}

func TestExecuteMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Execute(context.Background(), "code", "python", "", "")
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
	if remoteErr.Op != "submit" {
		t.Errorf("op = %q, want submit", remoteErr.Op)
	}
}

func TestExecuteRemoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Execute(context.Background(), "code", "python", "", "")
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %v, want *RemoteError", err)
	}
}

func TestExecuteCancelledWhilePolling(t *testing.T) {
	fake := &fakeJudge{token: "tok-4", results: []map[string]any{queuedResult()}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewClient(config.JudgeConfig{
		BaseURL:      srv.URL,
		PollInterval: time.Second,
		PollAttempts: 10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Execute(ctx, "code", "python", "", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestExecuteSendsAPIKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-RapidAPI-Key")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(config.JudgeConfig{BaseURL: srv.URL, APIKey: "secret-key"})
	_, _ = client.Execute(context.Background(), "code", "python", "", "")
	if gotKey != "secret-key" {
		t.Errorf("X-RapidAPI-Key = %q, want %q", gotKey, "secret-key")
	}
}

func TestFlexSecondsDecoding(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`"0.034"`, 0.034},
		{`0.5`, 0.5},
		{`null`, 0},
		{`""`, 0},
		{`"garbage"`, 0},
	}
	for _, tc := range cases {
		var f flexSeconds
		if err := json.Unmarshal([]byte(tc.raw), &f); err != nil {
			t.Errorf("unmarshal %s: %v", tc.raw, err)
			continue
		}
		if float64(f) != tc.want {
			t.Errorf("decode %s = %v, want %v", tc.raw, float64(f), tc.want)
		}
	}
}

func TestSupportedLanguages(t *testing.T) {
	for _, lang := range []string{"python", "javascript", "java", "cpp"} {
		if !IsSupportedLanguage(lang) {
			t.Errorf("IsSupportedLanguage(%q) = false, want true", lang)
		}
	}
	if IsSupportedLanguage("brainfuck") {
		t.Error("IsSupportedLanguage(brainfuck) = true, want false")
	}
	if got := len(SupportedLanguages()); got != 4 {
		t.Errorf("len(SupportedLanguages()) = %d, want 4", got)
	}
}

func TestRemoteErrorFormatting(t *testing.T) {
	err := remoteErrorf("fetch", "unexpected status %d", 502)
	want := fmt.Sprintf("judge: fetch: unexpected status %d", 502)
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
