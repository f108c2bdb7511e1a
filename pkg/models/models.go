package models

// ReviewComment is one externally supplied review finding targeting a line
// in the post-change version of a file. Line is 1-based.
type ReviewComment struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Valid reports whether the comment carries enough information to be posted.
func (c ReviewComment) Valid() bool {
	return c.File != "" && c.Line > 0 && c.Description != ""
}

// FileDiff represents one changed file in a merge request diff set
type FileDiff struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// DiffRefs is the triple of commit SHAs that pins a merge request diff view
// to a specific comparison snapshot. All positional comments in one sync run
// must reference the same DiffRefs.
type DiffRefs struct {
	BaseSHA  string `json:"base_sha"`
	StartSHA string `json:"start_sha"`
	HeadSHA  string `json:"head_sha"`
}

// MergeRequest holds the details of a merge request needed for a sync run
type MergeRequest struct {
	IID          int    `json:"iid"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	State        string `json:"state"`
	Author       string `json:"author"`
	WebURL       string `json:"web_url"`
}
