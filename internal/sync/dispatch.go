// Package sync implements the comment dispatch policy: each review comment
// is posted either as a positional inline discussion, when its target line
// is part of the merge request diff, or as a plain fallback note linking to
// the file at the head commit.
package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewsync/internal/diff"
	"github.com/reviewsync/internal/gitlab"
	"github.com/reviewsync/internal/logging"
	"github.com/reviewsync/internal/retry"
	"github.com/reviewsync/pkg/models"
)

// Outcome classifies how one review comment was delivered
type Outcome string

const (
	OutcomePositional Outcome = "positional"
	OutcomeFallback   Outcome = "fallback"
	OutcomeFailed     Outcome = "failed"
)

// Result is the delivery record for one review comment
type Result struct {
	Comment  models.ReviewComment
	Outcome  Outcome
	Position *diff.LinePosition // set for positional posts
	Err      error              // set when Outcome is Failed
}

// Report aggregates the results of one sync run
type Report struct {
	Results    []Result
	Positional int
	Fallback   int
	Failed     int
}

// Poster is the subset of the GitLab client the dispatcher needs. Kept as an
// interface so the dispatch policy is testable without transport.
type Poster interface {
	CreateDiscussion(ctx context.Context, projectID string, mrIID int, comment string, position *gitlab.Position) error
	CreateNote(ctx context.Context, projectID string, mrIID int, comment string) error
}

// Dispatcher posts review comments against one merge request snapshot
type Dispatcher struct {
	poster        Poster
	logger        *logging.SyncLogger
	retryCfg      retry.RetryConfig
	dryRun        bool
	projectWebURL string
}

// NewDispatcher creates a dispatcher. projectWebURL is the browsable root of
// the repository, used to build deep links for fallback notes.
func NewDispatcher(poster Poster, logger *logging.SyncLogger, projectWebURL string, dryRun bool) *Dispatcher {
	return &Dispatcher{
		poster:        poster,
		logger:        logger,
		retryCfg:      retry.APIRetryConfig(),
		dryRun:        dryRun,
		projectWebURL: strings.TrimSuffix(projectWebURL, "/"),
	}
}

// Run dispatches all comments sequentially against the pinned diff refs.
// Individual failures are isolated: a failed comment is recorded and the run
// continues with the next one.
func (d *Dispatcher) Run(ctx context.Context, mr *models.MergeRequest, changes []models.FileDiff, refs models.DiffRefs, comments []models.ReviewComment) *Report {
	report := &Report{Results: make([]Result, 0, len(comments))}

	for _, comment := range comments {
		result := d.dispatch(ctx, mr, changes, refs, comment)

		switch result.Outcome {
		case OutcomePositional:
			report.Positional++
		case OutcomeFallback:
			report.Fallback++
		case OutcomeFailed:
			report.Failed++
			d.logger.LogError(fmt.Sprintf("dispatching comment for %s:%d", comment.File, comment.Line), result.Err)
		}
		d.logger.LogOutcome(comment.File, comment.Line, string(result.Outcome))

		report.Results = append(report.Results, result)
	}

	return report
}

func (d *Dispatcher) dispatch(ctx context.Context, mr *models.MergeRequest, changes []models.FileDiff, refs models.DiffRefs, comment models.ReviewComment) Result {
	fileDiff := findFileDiff(changes, comment.File)
	if fileDiff == nil {
		d.logger.Debug("file %s not in the changed set, using fallback note", comment.File)
		return d.postFallback(ctx, mr, refs, comment)
	}

	position, found := diff.Locate(fileDiff.Diff, comment.Line)
	if !found {
		d.logger.Debug("line %d of %s is outside the displayed diff, using fallback note", comment.Line, comment.File)
		return d.postFallback(ctx, mr, refs, comment)
	}

	if d.dryRun {
		d.logger.Log("[dry-run] would post inline comment at %s:%d", comment.File, comment.Line)
		return Result{Comment: comment, Outcome: OutcomePositional, Position: position}
	}

	payload := &gitlab.Position{
		BaseSHA:  refs.BaseSHA,
		StartSHA: refs.StartSHA,
		HeadSHA:  refs.HeadSHA,
		OldPath:  fileDiff.OldPath,
		NewPath:  fileDiff.NewPath,
		NewLine:  position.NewLine,
		OldLine:  position.OldLine,
	}

	result := retry.RetryWithBackoff(ctx, d.retryCfg, func() error {
		return d.poster.CreateDiscussion(ctx, mr.ProjectID, mr.IID, formatBody(comment), payload)
	}, d.logger)

	if result.Success {
		return Result{Comment: comment, Outcome: OutcomePositional, Position: position}
	}

	// The server may reject a position it cannot resolve onto the diff even
	// when our locator found the line; degrade to the fallback path rather
	// than failing the comment
	if gitlab.IsRejection(result.LastError) {
		d.logger.Debug("positional post rejected for %s:%d, degrading to fallback note: %v",
			comment.File, comment.Line, result.LastError)
		return d.postFallback(ctx, mr, refs, comment)
	}

	return Result{Comment: comment, Outcome: OutcomeFailed, Err: result.LastError}
}

func (d *Dispatcher) postFallback(ctx context.Context, mr *models.MergeRequest, refs models.DiffRefs, comment models.ReviewComment) Result {
	if d.dryRun {
		d.logger.Log("[dry-run] would post fallback note for %s:%d", comment.File, comment.Line)
		return Result{Comment: comment, Outcome: OutcomeFallback}
	}

	body := d.formatFallbackBody(comment, refs)

	result := retry.RetryWithBackoff(ctx, d.retryCfg, func() error {
		return d.poster.CreateNote(ctx, mr.ProjectID, mr.IID, body)
	}, d.logger)

	if !result.Success {
		return Result{Comment: comment, Outcome: OutcomeFailed, Err: result.LastError}
	}

	return Result{Comment: comment, Outcome: OutcomeFallback}
}

// findFileDiff matches by new path first, then old path, so comments against
// renamed files still resolve
func findFileDiff(changes []models.FileDiff, filePath string) *models.FileDiff {
	filePath = strings.TrimPrefix(filePath, "/")

	for i := range changes {
		if changes[i].NewPath == filePath {
			return &changes[i]
		}
	}
	for i := range changes {
		if changes[i].OldPath == filePath {
			return &changes[i]
		}
	}

	return nil
}

func formatBody(comment models.ReviewComment) string {
	var b strings.Builder
	b.WriteString(comment.Description)

	if comment.Suggestion != "" {
		b.WriteString("\n\n```suggestion\n")
		b.WriteString(comment.Suggestion)
		b.WriteString("\n```")
	}

	return b.String()
}

// formatFallbackBody builds the plain note used when the target line is not
// part of the reviewed diff. It links to the file at the pinned head commit
// and says explicitly that the comment refers to code outside the diff.
func (d *Dispatcher) formatFallbackBody(comment models.ReviewComment, refs models.DiffRefs) string {
	path := strings.TrimPrefix(comment.File, "/")

	var b strings.Builder
	fmt.Fprintf(&b, "**%s, line %d** (refers to code outside the reviewed diff)\n\n", path, comment.Line)
	b.WriteString(comment.Description)

	if comment.Suggestion != "" {
		b.WriteString("\n\nSuggested change:\n\n```\n")
		b.WriteString(comment.Suggestion)
		b.WriteString("\n```")
	}

	if d.projectWebURL != "" && refs.HeadSHA != "" {
		fmt.Fprintf(&b, "\n\n[View file](%s/-/blob/%s/%s#L%d)", d.projectWebURL, refs.HeadSHA, path, comment.Line)
	}

	return b.String()
}
