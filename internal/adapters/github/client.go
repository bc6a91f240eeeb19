// Package github talks to the GitHub REST API as an app and as an app
// installation.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// maxDescription is GitHub's limit on a commit status description.
const maxDescription = 140

const requestTimeout = 30 * time.Second

// Client creates installation tokens and per-installation status clients.
type Client struct {
	baseURL *url.URL
	logger  *zap.Logger
}

// NewClient targets apiURL, or api.github.com when it is empty.
func NewClient(apiURL string, logger *zap.Logger) (*Client, error) {
	c := &Client{logger: logger}
	if apiURL != "" {
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		c.baseURL = u
	}
	return c, nil
}

func (c *Client) newClient(token string) *gh.Client {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = requestTimeout
	client := gh.NewClient(httpClient)
	if c.baseURL != nil {
		u := *c.baseURL
		client.BaseURL = &u
	}
	return client
}

// CreateInstallationToken exchanges an app JWT for an installation token.
func (c *Client) CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (string, error) {
	token, _, err := c.newClient(appJWT).Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create installation token for %d: %w", installationID, err)
	}
	return token.GetToken(), nil
}

// StatusClient returns a commit status client for an installation token.
func (c *Client) StatusClient(token string) ports.StatusAPI {
	return &statusClient{client: c.newClient(token), logger: c.logger}
}

type statusClient struct {
	client *gh.Client
	logger *zap.Logger
}

func (s *statusClient) CreateStatus(ctx context.Context, repo, sha string, status domain.StatusUpdate) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return fmt.Errorf("invalid repository name %q", repo)
	}

	rs := &gh.RepoStatus{
		State:       gh.String(string(status.State)),
		Description: gh.String(truncate(status.Description, maxDescription)),
		Context:     gh.String(status.Context),
	}
	if status.TargetURL != "" {
		rs.TargetURL = gh.String(status.TargetURL)
	}

	_, resp, err := s.client.Repositories.CreateStatus(ctx, owner, name, sha, rs)
	if err != nil {
		return fmt.Errorf("failed to create %s status on %s@%s: %w", status.State, repo, sha, err)
	}
	if resp != nil && resp.StatusCode != http.StatusCreated {
		s.logger.Debug("unexpected status code creating commit status", zap.Int("code", resp.StatusCode))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
