package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommentsBareArray(t *testing.T) {
	payload := `[
		{"file": "src/app.vue", "line": 12, "description": "Avoid mutating props"},
		{"file": "src/api.ts", "line": 40, "description": "Handle the error case", "suggestion": "if err != nil { return }"}
	]`

	comments, warnings, err := ParseComments(payload)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, comments, 2)
	assert.Equal(t, "src/app.vue", comments[0].File)
	assert.Equal(t, 12, comments[0].Line)
	assert.Equal(t, "if err != nil { return }", comments[1].Suggestion)
}

func TestParseCommentsEnvelope(t *testing.T) {
	payload := `{"comments": [{"file": "main.go", "line": 3, "description": "unused import"}]}`

	comments, _, err := ParseComments(payload)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "main.go", comments[0].File)
}

func TestParseCommentsStripsCodeFence(t *testing.T) {
	payload := "```json\n[{\"file\": \"a.ts\", \"line\": 1, \"description\": \"x\"}]\n```"

	comments, _, err := ParseComments(payload)
	require.NoError(t, err)
	require.Len(t, comments, 1)
}

func TestParseCommentsRepairsTrailingComma(t *testing.T) {
	payload := `[{"file": "a.ts", "line": 1, "description": "x"},]`

	comments, _, err := ParseComments(payload)
	require.NoError(t, err)
	require.Len(t, comments, 1)
}

func TestParseCommentsDropsInvalidEntries(t *testing.T) {
	payload := `[
		{"file": "", "line": 1, "description": "no file"},
		{"file": "a.ts", "line": 0, "description": "bad line"},
		{"file": "a.ts", "line": 2, "description": ""},
		{"file": "ok.ts", "line": 5, "description": "keeps this one"}
	]`

	comments, warnings, err := ParseComments(payload)
	require.NoError(t, err)
	assert.Len(t, warnings, 3)
	require.Len(t, comments, 1)
	assert.Equal(t, "ok.ts", comments[0].File)
}

func TestParseCommentsEmptyPayload(t *testing.T) {
	_, _, err := ParseComments("   ")
	assert.Error(t, err)
}

func TestParseCommentsGarbage(t *testing.T) {
	_, _, err := ParseComments("the model refused to answer")
	assert.Error(t, err)
}
