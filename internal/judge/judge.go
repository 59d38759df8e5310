// Package judge implements the client for the external Judge0-compatible
// code-execution service. It submits a single (code, stdin, expected
// output) triple, polls until the remote execution reaches a terminal
// state, and classifies the raw remote status into a domain verdict.
package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codearena-oj/apiserver/config"
	"github.com/codearena-oj/apiserver/types"
)

// Remote language ids for the fixed supported set. Extending the
// language set means extending this table and the API-level whitelist
// together.
var languageIDs = map[string]int{
	"python":     71, // Python 3
	"javascript": 63, // JavaScript (Node.js)
	"java":       62, // Java
	"cpp":        54, // C++ (GCC 9.2.0)
}

// Remote status ids 1 and 2 mean in-queue/processing; anything above
// is terminal.
const lastNonTerminalStatusID = 2

const (
	defaultPollInterval = time.Second
	defaultPollAttempts = 10
	defaultHTTPTimeout  = 30 * time.Second
)

// IsSupportedLanguage reports whether the language is in the supported set.
func IsSupportedLanguage(language string) bool {
	_, ok := languageIDs[language]
	return ok
}

// SupportedLanguages returns the supported language identifiers.
func SupportedLanguages() []string {
	langs := make([]string, 0, len(languageIDs))
	for lang := range languageIDs {
		langs = append(langs, lang)
	}
	return langs
}

// Client talks to the remote execution service. It is stateless across
// invocations apart from its immutable configuration and is safe for
// concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollAttempts int
	httpClient   *http.Client
}

// NewClient constructs a Client from config, applying defaults for
// unset polling settings.
func NewClient(cfg config.JudgeConfig) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := cfg.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: interval,
		pollAttempts: attempts,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type submitRequest struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type remoteStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type remoteResult struct {
	Status        remoteStatus `json:"status"`
	Time          flexSeconds  `json:"time"`
	Memory        int          `json:"memory"`
	Stdout        string       `json:"stdout"`
	Stderr        string       `json:"stderr"`
	CompileOutput string       `json:"compile_output"`
}

// Execute runs code against a single test case: submit, poll to a
// terminal state, classify. Synchronous from the caller's perspective.
//
// Returned errors: ErrUnsupportedLanguage before any network call for
// a language outside the supported set, *RemoteError for transport
// failures and malformed responses, ErrPollTimeout when the polling
// budget is exhausted, and the context error on cancellation.
func (c *Client) Execute(ctx context.Context, code, language, stdin, expectedOutput string) (types.JudgeResult, error) {
	languageID, ok := languageIDs[language]
	if !ok {
		return types.JudgeResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	token, err := c.submit(ctx, submitRequest{
		SourceCode:     base64.StdEncoding.EncodeToString([]byte(code)),
		LanguageID:     languageID,
		Stdin:          base64.StdEncoding.EncodeToString([]byte(stdin)),
		ExpectedOutput: base64.StdEncoding.EncodeToString([]byte(expectedOutput)),
	})
	if err != nil {
		return types.JudgeResult{}, err
	}

	result, err := c.waitForResult(ctx, token)
	if err != nil {
		return types.JudgeResult{}, err
	}

	return classify(result), nil
}

// submit posts the encoded payload and returns the tracking token.
func (c *Client) submit(ctx context.Context, payload submitRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &RemoteError{Op: "submit", Err: err}
	}

	url := c.baseURL + "/submissions?base64_encoded=true&wait=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &RemoteError{Op: "submit", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RemoteError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", remoteErrorf("submit", "unexpected status %d", resp.StatusCode)
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", &RemoteError{Op: "submit", Err: err}
	}
	if strings.TrimSpace(submitted.Token) == "" {
		return "", remoteErrorf("submit", "response contains no token")
	}
	return submitted.Token, nil
}

// fetch retrieves the current state of a remote submission by token.
func (c *Client) fetch(ctx context.Context, token string) (remoteResult, error) {
	url := fmt.Sprintf("%s/submissions/%s?base64_encoded=true", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return remoteResult{}, &RemoteError{Op: "fetch", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remoteResult{}, &RemoteError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteResult{}, remoteErrorf("fetch", "unexpected status %d", resp.StatusCode)
	}

	var result remoteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return remoteResult{}, &RemoteError{Op: "fetch", Err: err}
	}
	return result, nil
}

// waitForResult polls at a fixed interval up to the configured attempt
// budget. Exceeding the budget without reaching a terminal state yields
// ErrPollTimeout.
func (c *Client) waitForResult(ctx context.Context, token string) (remoteResult, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		result, err := c.fetch(ctx, token)
		if err != nil {
			return remoteResult{}, err
		}
		if result.Status.ID > lastNonTerminalStatusID {
			return result, nil
		}

		timer.Reset(c.pollInterval)
		select {
		case <-ctx.Done():
			return remoteResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	return remoteResult{}, fmt.Errorf("%w after %d attempts", ErrPollTimeout, c.pollAttempts)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
}

// flexSeconds decodes the remote "time" field, which arrives either as
// a JSON number or as a stringified float depending on the service
// version, and may be null.
type flexSeconds float64

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		*f = 0
		return nil
	}
	*f = flexSeconds(v)
	return nil
}
