package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
)

// StatusReporter posts the commit statuses for one run. Failures are logged
// and swallowed so they never abort a build.
type StatusReporter struct {
	api    ports.StatusAPI
	repo   string
	sha    string
	logURL string
	logger *zap.Logger
}

func NewStatusReporter(api ports.StatusAPI, repo, sha, logURL string, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{api: api, repo: repo, sha: sha, logURL: logURL, logger: logger}
}

func (r *StatusReporter) Pending(ctx context.Context, message string) {
	r.post(ctx, domain.StatusPending, message)
}

func (r *StatusReporter) Success(ctx context.Context, message string) {
	r.post(ctx, domain.StatusSuccess, message)
}

func (r *StatusReporter) Failure(ctx context.Context, message string) {
	r.post(ctx, domain.StatusFailure, message)
}

func (r *StatusReporter) Error(ctx context.Context, message string) {
	r.post(ctx, domain.StatusError, message)
}

func (r *StatusReporter) post(ctx context.Context, state domain.StatusState, message string) {
	err := r.api.CreateStatus(ctx, r.repo, r.sha, domain.StatusUpdate{
		State:       state,
		Description: message,
		TargetURL:   r.logURL,
		Context:     domain.StatusContext,
	})
	if err != nil {
		r.logger.Warn("failed to post commit status",
			zap.String("state", string(state)), zap.Error(err))
	}
}
