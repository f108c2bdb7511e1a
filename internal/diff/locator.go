// Package diff maps absolute line numbers in the post-change version of a
// file onto positions inside a GitLab-style unified diff. The result decides
// whether a review comment can be anchored inline or has to fall back to a
// plain note.
package diff

import (
	"regexp"
	"strconv"
	"strings"
)

// LineType classifies a line within a diff hunk
type LineType int

const (
	Context LineType = iota
	Added
	Removed
)

// Line is a single line of a hunk body
type Line struct {
	Type    LineType
	Content string
}

// Hunk is a contiguous diff segment with its header line numbers
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// LinePosition is the old/new line pair needed to anchor an inline comment.
// OldLine is nil for added lines, which have no counterpart in the old file.
type LinePosition struct {
	OldLine *int
	NewLine int
}

// Example: @@ -12,7 +12,9 @@ (counts are optional for single-line ranges).
// Anchored to line start so header-shaped text inside a hunk body (a diff of
// a diff) is treated as content, not as a new hunk.
var hunkHeaderRe = regexp.MustCompile(`(?m)^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// ParseHunks extracts all hunks from the unified diff body of one file.
// Text outside any recognizable header is ignored, so a malformed header
// simply drops that hunk instead of failing the whole diff.
func ParseHunks(diffText string) []Hunk {
	matches := hunkHeaderRe.FindAllStringSubmatchIndex(diffText, -1)
	if len(matches) == 0 {
		return nil
	}

	hunks := make([]Hunk, 0, len(matches))

	for i, match := range matches {
		oldStart, _ := strconv.Atoi(diffText[match[2]:match[3]])
		oldCount := 1
		if match[4] >= 0 {
			oldCount, _ = strconv.Atoi(diffText[match[4]:match[5]])
		}
		newStart, _ := strconv.Atoi(diffText[match[6]:match[7]])
		newCount := 1
		if match[8] >= 0 {
			newCount, _ = strconv.Atoi(diffText[match[8]:match[9]])
		}

		// Body runs from the end of this header to the start of the next
		var body string
		if i < len(matches)-1 {
			body = diffText[match[1]:matches[i+1][0]]
		} else {
			body = diffText[match[1]:]
		}

		// Skip the remainder of the header line itself
		if idx := strings.IndexByte(body, '\n'); idx >= 0 {
			body = body[idx+1:]
		} else {
			body = ""
		}

		hunks = append(hunks, Hunk{
			OldStart: oldStart,
			OldCount: oldCount,
			NewStart: newStart,
			NewCount: newCount,
			Lines:    splitHunkLines(body),
		})
	}

	return hunks
}

func splitHunkLines(body string) []Line {
	if body == "" {
		return nil
	}

	raw := strings.Split(body, "\n")
	// A trailing newline leaves an empty last element that is not a diff line
	if raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}

	lines := make([]Line, 0, len(raw))
	for _, r := range raw {
		switch {
		case strings.HasPrefix(r, "+"):
			lines = append(lines, Line{Type: Added, Content: r[1:]})
		case strings.HasPrefix(r, "-"):
			lines = append(lines, Line{Type: Removed, Content: r[1:]})
		default:
			content := r
			if strings.HasPrefix(r, " ") {
				content = r[1:]
			}
			lines = append(lines, Line{Type: Context, Content: content})
		}
	}

	return lines
}

// Locate finds the position of targetNewLine (1-based, in the post-change
// file) within the diff. It returns the matching old/new line pair and true,
// or nil and false when the line is not part of the displayed diff.
//
// Locate is a total function: any input string, including malformed diff
// text, yields a not-found result rather than an error. Hunks are scanned
// independently in order and the first match wins.
func Locate(diffText string, targetNewLine int) (*LinePosition, bool) {
	if targetNewLine <= 0 {
		return nil, false
	}

	for _, hunk := range ParseHunks(diffText) {
		if pos, ok := locateInHunk(hunk, targetNewLine); ok {
			return pos, true
		}
	}

	return nil, false
}

func locateInHunk(hunk Hunk, targetNewLine int) (*LinePosition, bool) {
	oldLine := hunk.OldStart
	newLine := hunk.NewStart

	for _, line := range hunk.Lines {
		// Assumes new-line numbers ascend within a well-formed hunk, so once
		// the counter passes the target the hunk cannot contain it
		if newLine > targetNewLine {
			return nil, false
		}

		switch line.Type {
		case Removed:
			// Removed lines have no new-file line number
			oldLine++
		case Added:
			if newLine == targetNewLine {
				return &LinePosition{OldLine: nil, NewLine: newLine}, true
			}
			newLine++
		default:
			if newLine == targetNewLine {
				old := oldLine
				return &LinePosition{OldLine: &old, NewLine: newLine}, true
			}
			oldLine++
			newLine++
		}
	}

	return nil, false
}
