package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/core/domain"
	"github.com/melih/github-snap-builder/internal/core/ports"
	"github.com/melih/github-snap-builder/internal/metrics"
)

// Signature headers, strongest first.
const (
	HeaderSignature256 = "X-Hub-Signature-256"
	HeaderSignature    = "X-Hub-Signature"
	HeaderEvent        = "X-GitHub-Event"
)

// Authenticator verifies deliveries and authenticates as an installation.
type Authenticator interface {
	VerifySignature(body []byte, header string) error
	Installation(ctx context.Context, installationID int64) (ports.StatusAPI, error)
}

// Runner executes one build request.
type Runner interface {
	Run(ctx context.Context, req domain.BuildRequest, repo domain.RepoConfig, api ports.StatusAPI) error
}

// Repos resolves repository configuration by full name.
type Repos interface {
	Repo(name string) (domain.RepoConfig, bool)
}

// triggers are the pull request actions that start a build.
var triggers = map[string]bool{
	"opened":      true,
	"reopened":    true,
	"synchronize": true,
}

// WebhookHandler turns pull request deliveries into pipeline runs.
type WebhookHandler struct {
	auth      Authenticator
	pipeline  Runner
	repos     Repos
	buildType string
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewWebhookHandler(auth Authenticator, pipeline Runner, repos Repos, buildType string, m *metrics.Metrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		auth:      auth,
		pipeline:  pipeline,
		repos:     repos,
		buildType: buildType,
		metrics:   m,
		logger:    logger,
	}
}

// pipelineError marks an unexpected pipeline failure. GitHub has already
// been told through the commit status, so the delivery still succeeds.
type pipelineError struct {
	err error
}

func (e *pipelineError) Error() string { return e.err.Error() }

func (e *pipelineError) Unwrap() error { return e.err }

// HandleEvent serves POST /event_handler. The build runs before responding.
func (h *WebhookHandler) HandleEvent(c *fiber.Ctx) error {
	// fiber reuses the request buffer once the handler returns.
	body := bytes.Clone(c.Body())

	signature := c.Get(HeaderSignature256)
	if signature == "" {
		signature = c.Get(HeaderSignature)
	}
	if err := h.auth.VerifySignature(body, signature); err != nil {
		h.metrics.Webhook(metrics.WebhookUnauthorized)
		h.logger.Info("rejected webhook", zap.Error(err))
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	if !json.Valid(body) {
		h.metrics.Webhook(metrics.WebhookInvalid)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON",
		})
	}

	event := c.Get(HeaderEvent)
	h.logger.Debug("received event", zap.String("event", event))
	if event != "pull_request" {
		return h.ignore(c, "unhandled event", zap.String("event", event))
	}

	parsed, err := gh.ParseWebHook(event, body)
	if err != nil {
		h.metrics.Webhook(metrics.WebhookInvalid)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	ev, ok := parsed.(*gh.PullRequestEvent)
	if !ok {
		return h.ignore(c, "unexpected payload type")
	}

	pr := ev.GetPullRequest()
	name := pr.GetBase().GetRepo().GetFullName()
	repo, ok := h.repos.Repo(name)
	if !ok {
		return h.ignore(c, "not configured for repo", zap.String("repo", name))
	}
	action := ev.GetAction()
	h.logger.Debug("pull request action", zap.String("repo", name), zap.String("action", action))
	if !triggers[action] {
		return h.ignore(c, "ignoring pull request action", zap.String("repo", name), zap.String("action", action))
	}

	api, err := h.auth.Installation(c.UserContext(), ev.GetInstallation().GetID())
	if err != nil {
		h.metrics.Webhook(metrics.WebhookAuthFailed)
		h.logger.Error("failed to authenticate installation", zap.String("repo", name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to authenticate installation",
		})
	}

	req := domain.BuildRequest{
		Repository:  name,
		BaseRepoURL: pr.GetBase().GetRepo().GetHTMLURL(),
		HeadRepoURL: pr.GetHead().GetRepo().GetHTMLURL(),
		CommitSHA:   pr.GetHead().GetSHA(),
		PRNumber:    pr.GetNumber(),
		BuildType:   h.buildType,
		Base:        repo.Base,
	}
	h.metrics.Webhook(metrics.WebhookAccepted)

	if err := h.pipeline.Run(c.UserContext(), req, repo, api); err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return &pipelineError{err: err}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) ignore(c *fiber.Ctx, reason string, fields ...zap.Field) error {
	h.metrics.Webhook(metrics.WebhookIgnored)
	h.logger.Info(reason, fields...)
	return c.SendStatus(fiber.StatusOK)
}
