package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reviewsync/internal/config"
	"github.com/reviewsync/internal/gitdetect"
	"github.com/reviewsync/internal/gitlab"
	"github.com/reviewsync/internal/logging"
	"github.com/reviewsync/internal/review"
	syncpkg "github.com/reviewsync/internal/sync"
	"github.com/reviewsync/pkg/models"
)

// SyncCommand returns the sync command
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync review comments into a GitLab merge request",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "comments",
				Aliases: []string{"f"},
				Usage:   "path to the review comments JSON file (use - for stdin)",
				EnvVars: []string{"REVIEWSYNC_COMMENTS"},
			},
			&cli.StringFlag{
				Name:    "branch",
				Aliases: []string{"b"},
				Usage:   "source branch of the merge request (default: current git branch)",
				EnvVars: []string{"REVIEWSYNC_BRANCH"},
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "GitLab project path (default: detected from the configured git remote)",
				EnvVars: []string{"REVIEWSYNC_PROJECT"},
			},
			&cli.IntFlag{
				Name:    "mr",
				Usage:   "merge request IID (skips branch-based lookup)",
				EnvVars: []string{"REVIEWSYNC_MR"},
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "resolve positions and report outcomes without posting",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable verbose output",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "maximum time for the whole sync run",
			},
		},
		Action: runSync,
	}
}

func runSync(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewSyncLogger(c.Bool("verbose"))
	defer logger.Close()
	logger.Debug("starting sync run %s", logger.RunID())

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	// Resolve the project: flag, config file, then the git remote
	projectPath := c.String("project")
	if projectPath == "" {
		projectPath = cfg.GitLab.Project
	}
	if projectPath == "" {
		projectPath, err = gitdetect.DetectProjectPath(cfg.Sync.Remote)
		if err != nil {
			return fmt.Errorf("failed to detect project from git remote (use --project): %w", err)
		}
		logger.Debug("detected project %s from remote %s", projectPath, cfg.Sync.Remote)
	}

	provider, err := gitlab.New(gitlab.Config{URL: cfg.GitLab.URL, Token: cfg.GitLab.Token})
	if err != nil {
		return fmt.Errorf("failed to create GitLab provider: %w", err)
	}

	projectID, projectWebURL, err := provider.ResolveProject(ctx, projectPath)
	if err != nil {
		return err
	}

	mr, err := findMergeRequest(ctx, c, provider, projectID, logger)
	if err != nil {
		return err
	}
	logger.Log("syncing into merge request !%d (%s)", mr.IID, mr.Title)

	commentsPath := c.String("comments")
	if commentsPath == "" {
		commentsPath = cfg.Sync.CommentsFile
	}
	comments, warnings, err := review.LoadComments(commentsPath)
	for _, w := range warnings {
		logger.Log("warning: %s", w)
	}
	if err != nil {
		return fmt.Errorf("failed to load review comments: %w", err)
	}
	if len(comments) == 0 {
		logger.Log("no valid review comments to sync")
		return nil
	}

	// Fetch the diff set and pin the diff refs once; every positional post
	// in this run anchors against the same snapshot even if the branch
	// advances mid-run
	changes, err := provider.HTTP().GetMergeRequestChanges(ctx, projectID, mr.IID)
	if err != nil {
		return fmt.Errorf("failed to fetch merge request changes: %w", err)
	}

	refs, err := provider.HTTP().GetLatestDiffRefs(ctx, projectID, mr.IID)
	if err != nil {
		return fmt.Errorf("failed to fetch merge request diff refs: %w", err)
	}

	dispatcher := syncpkg.NewDispatcher(provider.HTTP(), logger, projectWebURL, c.Bool("dry-run"))
	report := dispatcher.Run(ctx, mr, changes, *refs, comments)

	logger.Log("sync complete: %d positional, %d fallback, %d failed (of %d)",
		report.Positional, report.Fallback, report.Failed, len(report.Results))

	if report.Failed == len(report.Results) {
		return fmt.Errorf("all %d comments failed to post", report.Failed)
	}

	return nil
}

func findMergeRequest(ctx context.Context, c *cli.Context, provider *gitlab.Provider, projectID string, logger *logging.SyncLogger) (*models.MergeRequest, error) {
	if mrIID := c.Int("mr"); mrIID > 0 {
		return provider.GetMergeRequest(ctx, projectID, mrIID)
	}

	branch := c.String("branch")
	if branch == "" {
		var err error
		branch, err = gitdetect.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("failed to detect current branch (use --branch or --mr): %w", err)
		}
		logger.Debug("detected branch %s", branch)
	}

	return provider.FindOpenMergeRequestByBranch(ctx, projectID, branch)
}
