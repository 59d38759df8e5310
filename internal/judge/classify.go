package judge

import (
	"encoding/base64"

	"github.com/codearena-oj/apiserver/types"
)

// statusVerdicts maps the remote service's fine-grained status ids to
// domain verdicts. Ids 7 through 12 are runtime-error subtypes
// (SIGSEGV, SIGXFSZ, SIGFPE, SIGABRT, NZEC, other); 13 is an internal
// error and 14 an exec-format error on the remote side.
var statusVerdicts = map[int]types.Status{
	3:  types.StatusAccepted,
	4:  types.StatusWrongAnswer,
	5:  types.StatusTimeLimitExceeded,
	6:  types.StatusCompilationError,
	7:  types.StatusRuntimeError,
	8:  types.StatusRuntimeError,
	9:  types.StatusRuntimeError,
	10: types.StatusRuntimeError,
	11: types.StatusRuntimeError,
	12: types.StatusRuntimeError,
	13: types.StatusInternalError,
	14: types.StatusInternalError,
}

// classify maps a raw remote result into a JudgeResult. Unrecognized
// status ids degrade to InternalError rather than failing evaluation.
func classify(result remoteResult) types.JudgeResult {
	status, ok := statusVerdicts[result.Status.ID]
	if !ok {
		status = types.StatusInternalError
	}

	stdout := decodeBase64(result.Stdout)
	stderr := decodeBase64(result.Stderr)
	compileOutput := decodeBase64(result.CompileOutput)

	errorMessage := stderr
	if errorMessage == "" {
		errorMessage = compileOutput
	}

	return types.JudgeResult{
		Status:            status,
		StatusID:          result.Status.ID,
		StatusDescription: result.Status.Description,
		TimeSec:           float64(result.Time),
		MemoryKB:          result.Memory,
		Stdout:            stdout,
		Stderr:            stderr,
		CompileOutput:     compileOutput,
		ErrorMessage:      errorMessage,
	}
}

// decodeBase64 decodes an encoded field from the remote response.
// Fields that are empty, already plain, or malformed are returned
// unchanged; decoding never fails upward.
func decodeBase64(encoded string) string {
	if encoded == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	return string(decoded)
}
