package notes

import (
	"fmt"
	"strings"
)

// CountLines returns the number of lines in content.
// An empty string has 0 lines.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// FormatWithLineNumbers formats content with cat -n style line numbers.
// If start > 0 and end > 0, only lines in that 1-indexed inclusive range are
// returned. The second result is the total line count.
func FormatWithLineNumbers(content string, start, end int) (string, int) {
	if content == "" {
		return "", 0
	}

	lines := strings.Split(content, "\n")
	total := len(lines)

	from, to := 1, total
	if start > 0 {
		from = start
	}
	if end > 0 && end < total {
		to = end
	}
	if from > to {
		return "", total
	}

	var b strings.Builder
	for i := from; i <= to; i++ {
		if i > from {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d\t%s", i, lines[i-1])
	}
	return b.String(), total
}
