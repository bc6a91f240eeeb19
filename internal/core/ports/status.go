package ports

import (
	"context"

	"github.com/melih/github-snap-builder/internal/core/domain"
)

// StatusAPI posts commit statuses with installation credentials.
type StatusAPI interface {
	CreateStatus(ctx context.Context, repo, sha string, status domain.StatusUpdate) error
}

// GitHubAPI is the app-level side of the GitHub API.
type GitHubAPI interface {
	CreateInstallationToken(ctx context.Context, appJWT string, installationID int64) (string, error)
	// StatusClient returns a StatusAPI authenticated with an installation token.
	StatusClient(token string) StatusAPI
}
