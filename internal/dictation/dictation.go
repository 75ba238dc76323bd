// Package dictation turns speech-recognition transcripts into note edits.
package dictation

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	newLineWord = regexp.MustCompile(`(?i)\bnew line\b`)
	commaWord   = regexp.MustCompile(`(?i)\bcomma\b`)
	periodWord  = regexp.MustCompile(`(?i)\bperiod\b`)
	deleteWord  = regexp.MustCompile(`(?i)\bdelete\b`)

	spaceBeforePunct = regexp.MustCompile(` +([,.])`)
	trailingTags     = regexp.MustCompile(`(?:</[a-zA-Z0-9]+>)+$`)
	trailingEntity   = regexp.MustCompile(`&[#A-Za-z0-9]+;$`)
)

// Result is a processed transcript.
type Result struct {
	// Text is the dictated text with spoken commands applied.
	Text string
	// Deletes is how many characters to remove from the end of the existing
	// content before Text is appended.
	Deletes int
}

// Process applies the spoken commands "new line", "comma", "period" and
// "delete" to a transcript. Matching is case-insensitive on whole words.
func Process(transcript string) Result {
	deletes := len(deleteWord.FindAllStringIndex(transcript, -1))
	text := deleteWord.ReplaceAllString(transcript, "")
	text = newLineWord.ReplaceAllString(text, "\n")
	text = commaWord.ReplaceAllString(text, ",")
	text = periodWord.ReplaceAllString(text, ".")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return Result{Text: strings.Trim(strings.Join(lines, "\n"), "\n "), Deletes: deletes}
}

// Apply appends the result to serialized rich-text content. Text is inserted
// before trailing closing tags so it joins the last paragraph, and deletes
// remove characters of text, never markup.
func Apply(content string, r Result) string {
	tail := trailingTags.FindString(content)
	body := content[:len(content)-len(tail)]

	for i := 0; i < r.Deletes && body != ""; i++ {
		if strings.HasSuffix(body, ">") {
			break
		}
		if loc := trailingEntity.FindStringIndex(body); loc != nil {
			body = body[:loc[0]]
			continue
		}
		_, size := utf8.DecodeLastRuneInString(body)
		body = body[:len(body)-size]
	}

	if r.Text == "" {
		return body + tail
	}
	escaped := strings.ReplaceAll(html.EscapeString(r.Text), "\n", "<br>")
	if body != "" && !strings.HasSuffix(body, " ") && !strings.HasSuffix(body, ">") {
		escaped = " " + escaped
	}
	if content == "" {
		return "<p>" + escaped + "</p>"
	}
	return body + escaped + tail
}
