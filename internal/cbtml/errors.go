package cbtml

import (
	"fmt"
	"strings"
)

// Error is a compile error tied to a source position. Line and Col are
// 1-based and always refer to the original template source, never to the
// generated output.
type Error struct {
	File    string
	Line    int
	Col     int
	Message string
	Hint    string
	Context string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile error\n  -> %s:%d:%d\n", e.File, e.Line, e.Col)
	if e.Context != "" {
		b.WriteString("\n")
		b.WriteString(e.Context)
	}
	fmt.Fprintf(&b, "  error: %s", e.Message)
	if e.Hint != "" {
		fmt.Fprintf(&b, "\n  hint: %s", e.Hint)
	}
	return b.String()
}

// errAt creates an Error without a source snippet (parser stage, where only
// token positions are available).
func errAt(file string, line, col int, format string, args ...any) *Error {
	return &Error{
		File:    file,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf(format, args...),
	}
}

// errWithSource creates an Error carrying a few lines of surrounding source.
func errWithSource(file string, line, col int, source, format string, args ...any) *Error {
	return &Error{
		File:    file,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf(format, args...),
		Context: buildContext(source, line),
	}
}

// buildContext renders up to three lines before and two after the error line,
// with a marker on the offending line.
func buildContext(source string, errorLine int) string {
	lines := strings.Split(source, "\n")
	start := errorLine - 3
	if start < 0 {
		start = 0
	}
	end := errorLine + 2
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	width := len(fmt.Sprintf("%d", end))
	for i := start; i < end; i++ {
		marker := " "
		if i+1 == errorLine {
			marker = ">"
		}
		fmt.Fprintf(&b, "  %s %*d | %s\n", marker, width, i+1, lines[i])
	}
	return b.String()
}
