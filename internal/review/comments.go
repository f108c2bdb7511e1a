// Package review loads externally supplied (AI-generated) review comments.
// The generating assistant does not always emit strictly valid JSON, so the
// loader strips markdown fences and runs the payload through jsonrepair
// before decoding.
package review

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reviewsync/pkg/models"
)

// commentsEnvelope accepts both a bare array and an object wrapping it
type commentsEnvelope struct {
	Comments []models.ReviewComment `json:"comments"`
}

// LoadComments reads review comments from the given path, or from stdin when
// path is "-". Invalid entries are dropped and reported as warnings; only an
// unreadable or undecodable payload is an error.
func LoadComments(path string) ([]models.ReviewComment, []string, error) {
	var raw []byte
	var err error

	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read comments from stdin: %w", err)
		}
	} else {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read comments file: %w", err)
		}
	}

	return ParseComments(string(raw))
}

// ParseComments decodes a review comment payload, repairing common
// AI-generation defects (code fences, trailing commas, truncated arrays)
// along the way.
func ParseComments(raw string) ([]models.ReviewComment, []string, error) {
	cleaned := stripCodeFences(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, nil, fmt.Errorf("comments payload is empty")
	}

	comments, err := decodeComments(cleaned)
	if err != nil {
		// Repair pass for malformed JSON, then try once more
		repaired, repairErr := jsonrepair.JSONRepair(cleaned)
		if repairErr != nil {
			return nil, nil, fmt.Errorf("failed to parse comments JSON: %w", err)
		}

		comments, err = decodeComments(repaired)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse comments JSON after repair: %w", err)
		}
	}

	valid := make([]models.ReviewComment, 0, len(comments))
	var warnings []string
	for i, c := range comments {
		if !c.Valid() {
			warnings = append(warnings, fmt.Sprintf("dropping comment %d: missing file, line, or description (file=%q line=%d)", i, c.File, c.Line))
			continue
		}
		valid = append(valid, c)
	}

	return valid, warnings, nil
}

func decodeComments(payload string) ([]models.ReviewComment, error) {
	// Bare array form first
	var list []models.ReviewComment
	if err := json.Unmarshal([]byte(payload), &list); err == nil {
		return list, nil
	}

	var envelope commentsEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, err
	}
	if envelope.Comments == nil {
		return nil, fmt.Errorf("no comments array found in payload")
	}

	return envelope.Comments, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a json language tag
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}
