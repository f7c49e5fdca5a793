package applier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/trakrf/action-spec-sub003/src/pkg/config"
	"github.com/trakrf/action-spec-sub003/src/pkg/detect"
	"github.com/trakrf/action-spec-sub003/src/pkg/diff"
	"github.com/trakrf/action-spec-sub003/src/pkg/github"
	"github.com/trakrf/action-spec-sub003/src/pkg/models"
	"github.com/trakrf/action-spec-sub003/src/pkg/policy"
	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
	"github.com/trakrf/action-spec-sub003/src/pkg/template"
)

var logger = log.WithField("package", "applier")

// maxInlineDiffLines is the largest diff rendered inline in a PR body before
// it collapses behind a details block.
const maxInlineDiffLines = 50

// Request is one spec change submission.
type Request struct {
	// Repo is "owner/name".
	Repo string
	// Path is the spec file path inside the repository.
	Path string
	// Content is the proposed YAML document.
	Content []byte
	// CommitMessage overrides the generated commit message.
	CommitMessage string
	// DryRun stops after detection: no branch, commit, or PR.
	DryRun bool
}

// ApplyError wraps a pipeline failure with the step it happened in and the
// branch that may have been left behind.
type ApplyError struct {
	Step   string
	Branch string
	Err    error
}

func (e *ApplyError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("apply failed at %s (branch %s): %v", e.Step, e.Branch, e.Err)
	}
	return fmt.Sprintf("apply failed at %s: %v", e.Step, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Applier runs the full change pipeline: validate, diff against the current
// version, gate, then branch, commit, and open a PR.
type Applier struct {
	parser   spec.SpecParser
	detector detect.ChangeDetector
	client   github.RepoClient
	gate     policy.Gate
	renderer *template.Renderer
	differ   *diff.Differ
	cfg      config.ApplyConfig

	// test seams
	now       func() time.Time
	newSuffix func() string
}

func New(parser spec.SpecParser, detector detect.ChangeDetector, client github.RepoClient,
	gate policy.Gate, renderer *template.Renderer, cfg config.ApplyConfig) *Applier {
	return &Applier{
		parser:    parser,
		detector:  detector,
		client:    client,
		gate:      gate,
		renderer:  renderer,
		differ:    diff.NewDiffer(),
		cfg:       cfg,
		now:       time.Now,
		newSuffix: func() string { return uuid.NewString()[:8] },
	}
}

// Validate parses and validates a document without touching the repository.
func (a *Applier) Validate(raw []byte) (*models.Specification, error) {
	return a.parser.ParseAndValidate(raw)
}

// Apply runs the pipeline for one request. The returned warnings reflect the
// diff against the file currently in the repository; a file that does not
// exist yet produces none.
func (a *Applier) Apply(ctx context.Context, req Request) (*models.ApplyResult, error) {
	logger.WithFields(log.Fields{"repo": req.Repo, "path": req.Path}).Info("apply: starting...")

	proposed, err := a.parser.ParseAndValidate(req.Content)
	if err != nil {
		return nil, &ApplyError{Step: "validate", Err: err}
	}

	previous, previousRaw, err := a.fetchPrevious(ctx, req)
	if err != nil {
		return nil, &ApplyError{Step: "fetch", Err: err}
	}

	warnings := a.detector.Detect(previous, proposed)

	policySummary := ""
	if a.gate != nil {
		evaluation, gateErr := a.gate.Evaluate(ctx, previous, proposed, warnings)
		if gateErr != nil {
			return nil, &ApplyError{Step: "policy", Err: gateErr}
		}
		if evaluation.ShouldBlock() {
			return nil, &ApplyError{Step: "policy", Err: &policy.BlockedError{
				Violations: evaluation.BlockingViolations(),
			}}
		}
		policySummary = policy.Summarize(evaluation)
	}

	if req.DryRun {
		return &models.ApplyResult{Success: true, Warnings: warnings}, nil
	}

	base := a.cfg.BaseBranch
	if base == "" {
		base, err = a.client.GetDefaultBranch(ctx, req.Repo)
		if err != nil {
			return nil, &ApplyError{Step: "resolve base", Err: err}
		}
	}

	branch, err := a.createBranch(ctx, req.Repo, base)
	if err != nil {
		return nil, &ApplyError{Step: "branch", Err: err}
	}

	message := req.CommitMessage
	if message == "" {
		message = fmt.Sprintf("Update ActionSpec for %s", proposed.Metadata.Name)
	}
	commitSHA, err := a.client.CommitFile(ctx, req.Repo, branch, req.Path, message, req.Content)
	if err != nil {
		return nil, &ApplyError{Step: "commit", Branch: branch, Err: err}
	}

	bodyData := template.PRBodyData{
		SpecName:      proposed.Metadata.Name,
		Kind:          proposed.Kind,
		Environment:   proposed.Metadata.Environment,
		FilePath:      req.Path,
		BranchName:    branch,
		Warnings:      warnings,
		PolicySummary: policySummary,
		Diff:          a.differ.FormatForMarkdown(a.differ.Diff(previousRaw, req.Content), maxInlineDiffLines),
		Timestamp:     a.now(),
	}
	body, err := a.renderer.RenderPRBody(bodyData)
	if err != nil {
		return nil, &ApplyError{Step: "render", Branch: branch, Err: err}
	}

	pr, err := a.client.CreatePullRequest(ctx, req.Repo, branch, base, a.renderer.RenderPRTitle(bodyData), body)
	if err != nil {
		return nil, &ApplyError{Step: "pull request", Branch: branch, Err: err}
	}

	// Labels are decoration; a label failure must not fail an apply that
	// already opened its PR.
	if len(a.cfg.Labels) > 0 {
		if labelErr := a.client.AddLabels(ctx, req.Repo, pr.Number, a.cfg.Labels); labelErr != nil {
			logger.WithFields(log.Fields{"repo": req.Repo, "pr": pr.Number}).
				WithError(labelErr).Warn("apply: failed to add labels")
		}
	}

	logger.WithFields(log.Fields{"repo": req.Repo, "pr": pr.Number, "branch": branch}).Info("apply: done.")
	return &models.ApplyResult{
		Success:     true,
		PullRequest: *pr,
		BranchName:  branch,
		CommitSHA:   commitSHA,
		Warnings:    warnings,
	}, nil
}

// fetchPrevious loads the current version of the spec file. A missing file
// means a brand-new specification and returns nil without error. The raw
// bytes come back alongside the parsed spec so the textual diff can cover
// files the parser rejects.
func (a *Applier) fetchPrevious(ctx context.Context, req Request) (*models.Specification, []byte, error) {
	content, _, err := a.client.FetchFile(ctx, req.Repo, req.Path, "")
	if err != nil {
		var notFound *github.FileNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	previous, err := a.parser.ParseAndValidate(content)
	if err != nil {
		// A broken file in the repository must not wedge the pipeline;
		// treat it as absent and let the PR replace it.
		logger.WithFields(log.Fields{"repo": req.Repo, "path": req.Path}).
			WithError(err).Warn("apply: existing spec file is invalid, treating as new")
		return nil, content, nil
	}
	return previous, content, nil
}

// createBranch makes the timestamped branch, retrying exactly once with a
// random suffix when two requests collide on the same second.
func (a *Applier) createBranch(ctx context.Context, repo, base string) (string, error) {
	branch := fmt.Sprintf("%s-%d", a.cfg.BranchPrefix, a.now().Unix())
	err := a.client.CreateBranch(ctx, repo, branch, base)
	if err == nil {
		return branch, nil
	}

	var exists *github.BranchExistsError
	if !errors.As(err, &exists) {
		return "", err
	}

	retry := fmt.Sprintf("%s-%s", branch, a.newSuffix())
	logger.WithFields(log.Fields{"branch": branch, "retry": retry}).Info("apply: branch collision, retrying")
	if err := a.client.CreateBranch(ctx, repo, retry, base); err != nil {
		return "", err
	}
	return retry, nil
}
