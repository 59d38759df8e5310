package judge

import (
	"encoding/base64"
	"testing"

	"github.com/codearena-oj/apiserver/types"
)

func TestClassifyStatusMapping(t *testing.T) {
	cases := []struct {
		statusID int
		want     types.Status
	}{
		{3, types.StatusAccepted},
		{4, types.StatusWrongAnswer},
		{5, types.StatusTimeLimitExceeded},
		{6, types.StatusCompilationError},
		{7, types.StatusRuntimeError},
		{8, types.StatusRuntimeError},
		{9, types.StatusRuntimeError},
		{10, types.StatusRuntimeError},
		{11, types.StatusRuntimeError},
		{12, types.StatusRuntimeError},
		{13, types.StatusInternalError},
		{14, types.StatusInternalError},
		{99, types.StatusInternalError},
		{0, types.StatusInternalError},
	}

	for _, tc := range cases {
		result := classify(remoteResult{Status: remoteStatus{ID: tc.statusID}})
		if result.Status != tc.want {
			t.Errorf("classify(status %d) = %v, want %v", tc.statusID, result.Status, tc.want)
		}
		if result.StatusID != tc.statusID {
			t.Errorf("classify(status %d) kept id %d", tc.statusID, result.StatusID)
		}
	}
}

func TestClassifyDecodesFields(t *testing.T) {
	result := classify(remoteResult{
		Status: remoteStatus{ID: 4, Description: "Wrong Answer"},
		Time:   flexSeconds(0.12),
		Memory: 2048,
		Stdout: base64.StdEncoding.EncodeToString([]byte("got 41\n")),
	})

	if result.Stdout != "got 41\n" {
		t.Errorf("stdout = %q, want decoded output", result.Stdout)
	}
	if result.StatusDescription != "Wrong Answer" {
		t.Errorf("description = %q", result.StatusDescription)
	}
	if result.TimeSec != 0.12 {
		t.Errorf("time = %v, want 0.12", result.TimeSec)
	}
	if result.MemoryKB != 2048 {
		t.Errorf("memory = %d, want 2048", result.MemoryKB)
	}
}

func TestClassifyErrorMessagePrecedence(t *testing.T) {
	stderr := base64.StdEncoding.EncodeToString([]byte("runtime panic"))
	compile := base64.StdEncoding.EncodeToString([]byte("syntax error"))

	// stderr wins when both are present.
	result := classify(remoteResult{
		Status:        remoteStatus{ID: 11},
		Stderr:        stderr,
		CompileOutput: compile,
	})
	if result.ErrorMessage != "runtime panic" {
		t.Errorf("error message = %q, want stderr", result.ErrorMessage)
	}

	// compile output fills in when stderr is empty.
	result = classify(remoteResult{
		Status:        remoteStatus{ID: 6},
		CompileOutput: compile,
	})
	if result.ErrorMessage != "syntax error" {
		t.Errorf("error message = %q, want compile output", result.ErrorMessage)
	}

	// neither present leaves it empty.
	result = classify(remoteResult{Status: remoteStatus{ID: 5}})
	if result.ErrorMessage != "" {
		t.Errorf("error message = %q, want empty", result.ErrorMessage)
	}
}

func TestDecodeBase64Fallback(t *testing.T) {
	if got := decodeBase64(""); got != "" {
		t.Errorf("decode empty = %q", got)
	}
	if got := decodeBase64("not!!base64"); got != "not!!base64" {
		t.Errorf("decode malformed = %q, want raw input back", got)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	if got := decodeBase64(encoded); got != "hello" {
		t.Errorf("decode = %q, want hello", got)
	}
}
