package encoding

import (
	"fmt"
	"strings"

	"framereel/internal/services"
)

const maxDiagnosticLines = 3

// Error reports a failed encoder run with its last diagnostic lines.
type Error struct {
	ExitCode int
	Tail     []string
}

func (e *Error) Error() string {
	diag := e.Diagnostic()
	if diag == "" {
		return fmt.Sprintf("ffmpeg exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with status %d: %s", e.ExitCode, diag)
}

// Diagnostic joins the last lines of the tail that explain the failure,
// skipping stats updates and ffmpeg's closing summary.
func (e *Error) Diagnostic() string {
	var kept []string
	for i := len(e.Tail) - 1; i >= 0 && len(kept) < maxDiagnosticLines; i-- {
		line := strings.TrimSpace(e.Tail[i])
		if line == "" || boilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, " / ")
}

func boilerplate(line string) bool {
	switch {
	case line == "Conversion failed!",
		strings.HasPrefix(line, "Exiting normally"),
		strings.HasPrefix(line, "frame="),
		strings.HasPrefix(line, "size="),
		strings.HasPrefix(line, "video:"),
		strings.HasPrefix(line, "[out#"),
		strings.HasPrefix(line, CommandLinePrefix):
		return true
	}
	return false
}

func (e *Error) Unwrap() error {
	return services.ErrEncode
}
