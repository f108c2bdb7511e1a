package gitlab

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/reviewsync/pkg/models"
)

// Config contains the settings needed to talk to a GitLab instance. It is
// passed explicitly into the provider constructor; nothing here lives in
// process-global state.
type Config struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// Provider wraps both GitLab clients: the official client for project and
// merge request lookup, and the custom HTTP client for the changes,
// versions, discussions and notes endpoints.
type Provider struct {
	client *gitlab.Client
	http   *HTTPClient
	config Config
}

// New creates a Provider for the configured GitLab instance
func New(config Config) (*Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("gitlab url is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}

	baseURL := strings.TrimSuffix(config.URL, "/")
	client, err := gitlab.NewClient(config.Token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &Provider{
		client: client,
		http:   NewHTTPClient(config.URL, config.Token),
		config: config,
	}, nil
}

// ResolveProject looks up a project by its namespaced path (group/project)
// and returns its numeric ID and web URL
func (p *Provider) ResolveProject(ctx context.Context, projectPath string) (string, string, error) {
	project, _, err := p.client.Projects.GetProject(projectPath, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve project %s: %w", projectPath, err)
	}

	return strconv.Itoa(project.ID), project.WebURL, nil
}

// GetMergeRequest fetches the details of a single merge request
func (p *Provider) GetMergeRequest(ctx context.Context, projectID string, mrIID int) (*models.MergeRequest, error) {
	mr, _, err := p.client.MergeRequests.GetMergeRequest(projectID, mrIID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get merge request %d: %w", mrIID, err)
	}

	details := &models.MergeRequest{
		IID:          mr.IID,
		ProjectID:    projectID,
		Title:        mr.Title,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		State:        mr.State,
		WebURL:       mr.WebURL,
	}
	if mr.Author != nil {
		details.Author = mr.Author.Username
	}

	return details, nil
}

// FindOpenMergeRequestByBranch finds the open merge request whose source
// branch matches. When several are open for the same branch the list is
// requested ordered by updated_at descending, so the most recently updated
// one wins.
func (p *Provider) FindOpenMergeRequestByBranch(ctx context.Context, projectID, sourceBranch string) (*models.MergeRequest, error) {
	mrs, err := p.http.ListOpenMergeRequestsByBranch(ctx, projectID, sourceBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge requests for branch %s: %w", sourceBranch, err)
	}

	if len(mrs) == 0 {
		return nil, fmt.Errorf("no open merge request found for branch %s", sourceBranch)
	}

	return &mrs[0], nil
}

// HTTP exposes the custom HTTP client for the diff-set and posting endpoints
func (p *Provider) HTTP() *HTTPClient {
	return p.http
}
