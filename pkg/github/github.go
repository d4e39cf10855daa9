package github

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v57/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const (
	RETRY_NUM uint64 = 3
	// PageSize is the per-page batch size for every offset-paginated listing.
	PageSize = 100
)

// GithubServiceClient is the full API surface the audit pipeline consumes.
type GithubServiceClient interface {
	ResolveOrganization(ctx context.Context, org string) (*github.Organization, error)
	ListOrganizationRepositories(ctx context.Context, org string) ([]*github.Repository, error)
	GetRepository(ctx context.Context, owner, name string) (*github.Repository, error)
	ListCodeScanningAnalyses(ctx context.Context, owner, repo string, opts *github.AnalysesListOptions) ([]*github.ScanningAnalysis, *github.Response, error)
	ListCodeScanningAlerts(ctx context.Context, owner, repo string, opts *github.AlertListOptions) ([]*github.Alert, *github.Response, error)
	ListSecretScanningAlerts(ctx context.Context, owner, repo string, opts *github.SecretScanningAlertListOptions) ([]*github.SecretScanningAlert, *github.Response, error)
	GetVulnerabilityAlertsEnabled(ctx context.Context, owner, repo string) (bool, *github.Response, error)
	GetBranchProtection(ctx context.Context, owner, repo, branch string) (*github.Protection, *github.Response, error)
	ListDependencyAlerts(ctx context.Context, owner, repo string, cursor *githubv4.String) (*DependencyAlertPage, error)
}

// GitHubRepoService is the subset of the repositories API the client uses,
// extracted so tests can fake pagination behavior.
type GitHubRepoService interface {
	ListByOrg(ctx context.Context, org string, opts *github.RepositoryListByOrgOptions) ([]*github.Repository, *github.Response, error)
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
}

type auditGitHubClient struct {
	repositories GitHubRepoService
	rest         *github.Client
	graphql      *githubv4.Client
	retryer      backoff.BackOff
	logger       logging.Logger
}

// NewGithubClient builds REST and GraphQL clients sharing one oauth2 token
// source. baseURL overrides the API endpoint for GitHub Enterprise Server;
// empty means api.github.com.
func NewGithubClient(token, baseURL string, logger logging.Logger) (*auditGitHubClient, error) {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	))
	rest := github.NewClient(httpClient)
	graphql := githubv4.NewClient(httpClient)
	if baseURL != "" { // Default: "https://api.github.com/"
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		rest.BaseURL = u
		graphql = githubv4.NewEnterpriseClient(u.JoinPath("graphql").String(), httpClient)
	}
	return &auditGitHubClient{
		repositories: rest.Repositories,
		rest:         rest,
		graphql:      graphql,
		retryer:      backoff.WithMaxRetries(backoff.NewExponentialBackOff(), RETRY_NUM),
		logger:       logger,
	}, nil
}

// ResolveOrganization verifies the organization exists and the credential can
// read it. This is the run's fatal-check, so unlike page fetches it is
// retried with backoff.
func (g *auditGitHubClient) ResolveOrganization(ctx context.Context, org string) (*github.Organization, error) {
	var organization *github.Organization
	operation := func() error {
		o, _, err := g.rest.Organizations.Get(ctx, org)
		if err != nil {
			return err
		}
		organization = o
		return nil
	}
	if err := backoff.RetryNotify(operation, g.retryer, g.newRetryLogger(ctx, "resolve organization")); err != nil {
		return nil, fmt.Errorf("failed to resolve organization %s: %w", org, err)
	}
	return organization, nil
}

// ListOrganizationRepositories pages through the organization listing
// exhaustively and returns every repository.
func (g *auditGitHubClient) ListOrganizationRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	var allRepo []*github.Repository
	opt := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: PageSize},
		Type:        "all",
	}
	for {
		repos, resp, err := g.repositories.ListByOrg(ctx, org, opt)
		if err != nil {
			return nil, err
		}
		g.logger.Infof(ctx, "Success GitHub API for org repos, org:%s, page:%d, repo_count:%d", org, opt.Page, len(repos))
		allRepo = append(allRepo, repos...)
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return allRepo, nil
}

func (g *auditGitHubClient) GetRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	repo, _, err := g.repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, err)
	}
	return repo, nil
}

func (g *auditGitHubClient) ListCodeScanningAnalyses(ctx context.Context, owner, repo string, opts *github.AnalysesListOptions) ([]*github.ScanningAnalysis, *github.Response, error) {
	return g.rest.CodeScanning.ListAnalysesForRepo(ctx, owner, repo, opts)
}

func (g *auditGitHubClient) ListCodeScanningAlerts(ctx context.Context, owner, repo string, opts *github.AlertListOptions) ([]*github.Alert, *github.Response, error) {
	return g.rest.CodeScanning.ListAlertsForRepo(ctx, owner, repo, opts)
}

func (g *auditGitHubClient) ListSecretScanningAlerts(ctx context.Context, owner, repo string, opts *github.SecretScanningAlertListOptions) ([]*github.SecretScanningAlert, *github.Response, error) {
	return g.rest.SecretScanning.ListAlertsForRepo(ctx, owner, repo, opts)
}

func (g *auditGitHubClient) GetVulnerabilityAlertsEnabled(ctx context.Context, owner, repo string) (bool, *github.Response, error) {
	return g.rest.Repositories.GetVulnerabilityAlerts(ctx, owner, repo)
}

func (g *auditGitHubClient) GetBranchProtection(ctx context.Context, owner, repo, branch string) (*github.Protection, *github.Response, error) {
	return g.rest.Repositories.GetBranchProtection(ctx, owner, repo, branch)
}

func (g *auditGitHubClient) newRetryLogger(ctx context.Context, funcName string) func(error, time.Duration) {
	return func(err error, ti time.Duration) {
		g.logger.Warnf(ctx, "[RetryLogger] %s error: duration=%+v, err=%+v", funcName, ti, err)
	}
}
