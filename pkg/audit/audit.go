package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/google/go-github/v57/github"

	"github.com/fleetsec/ghaudit/pkg/common"
)

const errAnnotationMaxLen = 200

// Config is the entry contract of one audit run.
type Config struct {
	Organization string
	Scope        common.Scope
	// Repositories is the explicit name list, only honored with ScopeCustom.
	Repositories []string
}

// repositoryService is the slice of the GitHub client the selector needs.
type repositoryService interface {
	ResolveOrganization(ctx context.Context, org string) (*github.Organization, error)
	ListOrganizationRepositories(ctx context.Context, org string) ([]*github.Repository, error)
	GetRepository(ctx context.Context, owner, name string) (*github.Repository, error)
}

type featureProber interface {
	Probe(ctx context.Context, owner string, repo *github.Repository) common.SecurityFeatureStatus
}

type alertCollector interface {
	Collect(ctx context.Context, owner, repo string) ([]common.Alert, error)
}

type complianceScorer interface {
	Score(repos []common.RepositorySummary) common.ComplianceResult
}

// Auditor runs the aggregation pipeline: select repositories, probe and
// collect per repository, fold into the fleet summary, then score once.
type Auditor struct {
	conf       Config
	client     repositoryService
	prober     featureProber
	code       alertCollector
	secret     alertCollector
	dependency alertCollector
	scorer     complianceScorer
	logger     logging.Logger
}

func NewAuditor(
	conf Config,
	client repositoryService,
	prober featureProber,
	code, secret, dependency alertCollector,
	scorer complianceScorer,
	logger logging.Logger,
) *Auditor {
	return &Auditor{
		conf:       conf,
		client:     client,
		prober:     prober,
		code:       code,
		secret:     secret,
		dependency: dependency,
		scorer:     scorer,
		logger:     logger,
	}
}

// Run executes one audit and returns the complete report document. Only
// setup failures (unresolvable organization, failed fleet listing) abort the
// run; everything later is absorbed at source or feature scope.
func (a *Auditor) Run(ctx context.Context) (*common.Report, error) {
	if _, err := a.client.ResolveOrganization(ctx, a.conf.Organization); err != nil {
		return nil, fmt.Errorf("resolve organization: %w", err)
	}

	repos, discovered, err := a.selectRepositories(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Infof(ctx, "Selected repositories, organization=%s, scope=%s, discovered=%d, selected=%d",
		a.conf.Organization, a.conf.Scope, discovered, len(repos))

	summary := common.FleetSummary{TotalRepositories: discovered}
	summaries := []common.RepositorySummary{}
	for _, repo := range repos {
		rs := a.auditRepository(ctx, repo)
		summary.Add(&rs)
		summaries = append(summaries, rs)
	}

	return &common.Report{
		Metadata: common.AuditRun{
			Organization: a.conf.Organization,
			AuditDate:    time.Now().UTC(),
			Scope:        string(a.conf.Scope),
			Version:      common.SchemaVersion,
		},
		Summary:      summary,
		Repositories: summaries,
		Compliance:   a.scorer.Score(summaries),
	}, nil
}

// selectRepositories resolves the target set. Explicit names that fail to
// resolve are skipped with a warning; in fleet mode the organization listing
// is exhaustive and then scope-filtered. The second return value is the
// number of repositories considered before filtering.
func (a *Auditor) selectRepositories(ctx context.Context) ([]*github.Repository, int, error) {
	if a.conf.Scope == common.ScopeCustom {
		var resolved []*github.Repository
		for _, name := range a.conf.Repositories {
			repo, err := a.client.GetRepository(ctx, a.conf.Organization, name)
			if err != nil {
				a.logger.Warnf(ctx, "Skip unresolvable repository: name=%s, err=%+v", name, err)
				continue
			}
			resolved = append(resolved, repo)
		}
		return common.DedupRepositories(resolved), len(a.conf.Repositories), nil
	}

	repos, err := a.client.ListOrganizationRepositories(ctx, a.conf.Organization)
	if err != nil {
		return nil, 0, fmt.Errorf("list organization repositories: %w", err)
	}
	filtered := common.FilterByScope(repos, a.conf.Scope)
	return common.DedupRepositories(filtered), len(repos), nil
}

// auditRepository populates one repository summary: probe the four security
// features, collect the three alert sources, derive the metrics. A failing
// source yields an empty collection and an annotation on that feature's
// status; the other sources are unaffected.
func (a *Auditor) auditRepository(ctx context.Context, repo *github.Repository) common.RepositorySummary {
	owner := a.conf.Organization
	name := repo.GetName()
	rs := common.RepositorySummary{
		Name:          name,
		FullName:      repo.GetFullName(),
		URL:           repo.GetHTMLURL(),
		Visibility:    repo.GetVisibility(),
		DefaultBranch: repo.GetDefaultBranch(),
	}
	if repo.UpdatedAt != nil {
		t := repo.UpdatedAt.Time
		rs.UpdatedAt = &t
	}

	status := a.prober.Probe(ctx, owner, repo)

	rs.CodeAlerts = a.collectSource(ctx, owner, name, a.code, &status.CodeScanning)
	rs.SecretAlerts = a.collectSource(ctx, owner, name, a.secret, &status.SecretScanning)
	rs.DependencyAlerts = a.collectSource(ctx, owner, name, a.dependency, &status.DependencyAlerts)

	rs.SecurityFeatures = status
	rs.Metrics = common.CalculateMetrics(rs.CodeAlerts, rs.SecretAlerts, rs.DependencyAlerts)
	return rs
}

// collectSource runs one alert pipeline and absorbs its failure at source
// scope: warn, annotate the feature status, return an empty collection.
func (a *Auditor) collectSource(ctx context.Context, owner, name string, collector alertCollector, probe *common.FeatureProbe) []common.Alert {
	alerts, err := collector.Collect(ctx, owner, name)
	if err != nil {
		a.logger.Warnf(ctx, "Failed to collect alerts: repository=%s/%s, err=%+v", owner, name, err)
		probe.Annotate(common.CutString(err.Error(), errAnnotationMaxLen))
		return []common.Alert{}
	}
	if alerts == nil {
		alerts = []common.Alert{}
	}
	return alerts
}
