package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/reviewsync/pkg/models"
)

// HTTPClient is a custom client for the GitLab REST endpoints the sync run
// needs. The official client is kept for project/MR lookup (see provider.go)
// but posting discussions and reading the changes/versions endpoints goes
// through direct HTTP requests so we control the payloads exactly.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// APIError is a non-2xx response from the GitLab API. The dispatch layer
// inspects the status code to distinguish a server-side position rejection
// (degrade to fallback) from a transient failure (retry).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// IsRejection reports whether the error is a client-side rejection, e.g. a
// position the server could not resolve onto the diff.
func IsRejection(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// NewHTTPClient creates a client for the given GitLab instance URL
func NewHTTPClient(baseURL, token string) *HTTPClient {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &HTTPClient{
		baseURL: fmt.Sprintf("%s/api/v4", baseURL),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		// GitLab.com allows ~10 req/s for authenticated API traffic; stay under it
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, requestURL string, body io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("PRIVATE-TOKEN", c.token)
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// mrSummary is the subset of the list-MRs response the sync run needs
type mrSummary struct {
	IID          int    `json:"iid"`
	Title        string `json:"title"`
	State        string `json:"state"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	WebURL       string `json:"web_url"`
	Author       struct {
		Username string `json:"username"`
	} `json:"author"`
}

// ListOpenMergeRequestsByBranch lists open merge requests whose source
// branch matches the given branch name, most recently updated first.
// The ordering is requested explicitly; GitLab's default is created_at.
func (c *HTTPClient) ListOpenMergeRequestsByBranch(ctx context.Context, projectID, sourceBranch string) ([]models.MergeRequest, error) {
	params := url.Values{}
	params.Add("state", "opened")
	params.Add("source_branch", sourceBranch)
	params.Add("order_by", "updated_at")
	params.Add("sort", "desc")

	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests?%s",
		c.baseURL, url.PathEscape(projectID), params.Encode())

	body, err := c.do(ctx, http.MethodGet, requestURL, nil, "")
	if err != nil {
		return nil, err
	}

	var summaries []mrSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	mrs := make([]models.MergeRequest, 0, len(summaries))
	for _, s := range summaries {
		mrs = append(mrs, models.MergeRequest{
			IID:          s.IID,
			ProjectID:    projectID,
			Title:        s.Title,
			State:        s.State,
			SourceBranch: s.SourceBranch,
			TargetBranch: s.TargetBranch,
			Author:       s.Author.Username,
			WebURL:       s.WebURL,
		})
	}

	return mrs, nil
}

// GetMergeRequestChanges fetches the per-file diff set for a merge request
func (c *HTTPClient) GetMergeRequestChanges(ctx context.Context, projectID string, mrIID int) ([]models.FileDiff, error) {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/changes",
		c.baseURL, url.PathEscape(projectID), mrIID)

	body, err := c.do(ctx, http.MethodGet, requestURL, nil, "")
	if err != nil {
		return nil, err
	}

	var changes struct {
		Changes []models.FileDiff `json:"changes"`
	}
	if err := json.Unmarshal(body, &changes); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return changes.Changes, nil
}

// GetLatestDiffRefs fetches the latest merge request version and returns its
// base/start/head SHA triple. Fetched once per sync run so every positional
// comment anchors against the same snapshot.
func (c *HTTPClient) GetLatestDiffRefs(ctx context.Context, projectID string, mrIID int) (*models.DiffRefs, error) {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/versions",
		c.baseURL, url.PathEscape(projectID), mrIID)

	body, err := c.do(ctx, http.MethodGet, requestURL, nil, "")
	if err != nil {
		return nil, err
	}

	var versions []struct {
		BaseCommitSHA  string `json:"base_commit_sha"`
		StartCommitSHA string `json:"start_commit_sha"`
		HeadCommitSHA  string `json:"head_commit_sha"`
	}
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(versions) == 0 {
		return nil, fmt.Errorf("no versions found for merge request %d", mrIID)
	}

	// The latest version is first in the list
	return &models.DiffRefs{
		BaseSHA:  versions[0].BaseCommitSHA,
		StartSHA: versions[0].StartCommitSHA,
		HeadSHA:  versions[0].HeadCommitSHA,
	}, nil
}

// Position is the GitLab position payload anchoring an inline discussion to
// a diff line. OldLine is omitted for added lines.
type Position struct {
	BaseSHA  string `json:"base_sha"`
	StartSHA string `json:"start_sha"`
	HeadSHA  string `json:"head_sha"`
	OldPath  string `json:"old_path"`
	NewPath  string `json:"new_path"`
	NewLine  int    `json:"new_line"`
	OldLine  *int   `json:"old_line,omitempty"`
}

// CreateDiscussion creates a discussion thread on a merge request. With a
// position it becomes an inline comment on the Changes tab; with nil it is a
// plain discussion.
func (c *HTTPClient) CreateDiscussion(ctx context.Context, projectID string, mrIID int, comment string, position *Position) error {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/discussions",
		c.baseURL, url.PathEscape(projectID), mrIID)

	requestData := map[string]interface{}{
		"body": comment,
	}
	if position != nil {
		pos := map[string]interface{}{
			"position_type": "text",
			"base_sha":      position.BaseSHA,
			"start_sha":     position.StartSHA,
			"head_sha":      position.HeadSHA,
			"old_path":      strings.TrimPrefix(position.OldPath, "/"),
			"new_path":      strings.TrimPrefix(position.NewPath, "/"),
			"new_line":      position.NewLine,
		}
		if position.OldLine != nil {
			pos["old_line"] = *position.OldLine
		}
		requestData["position"] = pos
	}

	requestBody, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, requestURL, bytes.NewReader(requestBody), "application/json")
	return err
}

// CreateNote creates a plain (unanchored) note on a merge request
func (c *HTTPClient) CreateNote(ctx context.Context, projectID string, mrIID int, comment string) error {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/notes",
		c.baseURL, url.PathEscape(projectID), mrIID)

	requestBody, err := json.Marshal(map[string]string{"body": comment})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, requestURL, bytes.NewReader(requestBody), "application/json")
	return err
}
