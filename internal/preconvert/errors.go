package preconvert

import (
	"errors"
	"fmt"
	"strings"

	"framereel/internal/proc"
	"framereel/internal/services"
)

// FrameFailure describes one frame the tool could not convert.
type FrameFailure struct {
	Frame      int    `json:"frame"`
	ExitCode   int    `json:"exit_code"`
	Diagnostic string `json:"diagnostic"`
}

// Error aggregates frame failures. Failures holds at most the first three;
// Total counts all of them.
type Error struct {
	Failures []FrameFailure
	Total    int
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msg := fmt.Sprintf("frame %d (exit %d)", f.Frame, f.ExitCode)
		if f.Diagnostic != "" {
			msg += ": " + f.Diagnostic
		}
		parts = append(parts, msg)
	}
	summary := fmt.Sprintf("%d frame(s) failed to convert", e.Total)
	if len(parts) == 0 {
		return summary
	}
	return summary + "; " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error {
	return services.ErrPreconversion
}

func failureFor(frame int, err error) FrameFailure {
	failure := FrameFailure{Frame: frame, ExitCode: -1, Diagnostic: err.Error()}
	var exitErr *proc.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.Code
		failure.Diagnostic = diagnostic(exitErr.Tail)
	}
	return failure
}

// maxDiagnosticLines bounds how much tool output one FrameFailure carries.
const maxDiagnosticLines = 3

// diagnostic joins the last meaningful stderr lines. oiiotool ends every
// error with "Full command line was:" and an echo of its arguments; both are
// dropped so the cause survives.
func diagnostic(tail []string) string {
	kept := make([]string, 0, len(tail))
	for _, line := range tail {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ">") || strings.EqualFold(line, "Full command line was:") {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) > maxDiagnosticLines {
		kept = kept[len(kept)-maxDiagnosticLines:]
	}
	return strings.Join(kept, " / ")
}
