package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsec/ghaudit/pkg/common"
)

type fakeRepositoryService struct {
	orgErr   error
	repos    []*github.Repository
	listErr  error
	byName   map[string]*github.Repository
	getCalls []string
}

func (f *fakeRepositoryService) ResolveOrganization(ctx context.Context, org string) (*github.Organization, error) {
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	return &github.Organization{Login: github.String(org)}, nil
}

func (f *fakeRepositoryService) ListOrganizationRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	return f.repos, f.listErr
}

func (f *fakeRepositoryService) GetRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	f.getCalls = append(f.getCalls, name)
	repo, ok := f.byName[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return repo, nil
}

type fakeProber struct{}

func (f *fakeProber) Probe(ctx context.Context, owner string, repo *github.Repository) common.SecurityFeatureStatus {
	return common.SecurityFeatureStatus{
		CodeScanning:     common.FeatureProbe{State: common.ProbeEnabled},
		SecretScanning:   common.FeatureProbe{State: common.ProbeEnabled},
		DependencyAlerts: common.FeatureProbe{State: common.ProbeEnabled},
		BranchProtection: common.FeatureProbe{State: common.ProbeEnabled},
	}
}

type fakeCollector struct {
	alerts []common.Alert
	err    error
	calls  int
}

func (f *fakeCollector) Collect(ctx context.Context, owner, repo string) ([]common.Alert, error) {
	f.calls++
	return f.alerts, f.err
}

type fakeScorer struct {
	got []common.RepositorySummary
}

func (f *fakeScorer) Score(repos []common.RepositorySummary) common.ComplianceResult {
	f.got = repos
	return common.ComplianceResult{OverallScore: 42, Frameworks: map[string]common.FrameworkScore{}}
}

func makeRepo(name string) *github.Repository {
	return &github.Repository{
		Name:          github.String(name),
		FullName:      github.String("org/" + name),
		DefaultBranch: github.String("main"),
	}
}

func newTestAuditor(conf Config, client *fakeRepositoryService, code, secret, dependency *fakeCollector) (*Auditor, *fakeScorer) {
	scorer := &fakeScorer{}
	return NewAuditor(conf, client, &fakeProber{}, code, secret, dependency, scorer, logging.NewLogger()), scorer
}

func TestRunFleetScope(t *testing.T) {
	created := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeRepositoryService{repos: []*github.Repository{makeRepo("app"), makeRepo("lib")}}
	code := &fakeCollector{alerts: []common.Alert{{
		ID:        "1",
		Source:    common.SourceCode,
		State:     common.AlertStateOpen,
		CreatedAt: created,
		Code:      &common.CodeAlertDetail{Severity: common.SeverityHigh, RuleID: "js/xss"},
	}}}
	auditor, scorer := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeAll},
		client, code, &fakeCollector{}, &fakeCollector{},
	)

	report, err := auditor.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "org", report.Metadata.Organization)
	assert.Equal(t, "all", report.Metadata.Scope)
	assert.Equal(t, common.SchemaVersion, report.Metadata.Version)
	assert.Equal(t, 2, report.Summary.TotalRepositories)
	assert.Equal(t, 2, report.Summary.ScannedRepositories)
	assert.Equal(t, 2, report.Summary.TotalAlerts)
	assert.Equal(t, 2, report.Summary.HighAlerts)
	require.Len(t, report.Repositories, 2)
	assert.Equal(t, "app", report.Repositories[0].Name)
	assert.Equal(t, 42.0, report.Compliance.OverallScore)
	assert.Len(t, scorer.got, 2)
}

func TestRunOrganizationResolutionFails(t *testing.T) {
	client := &fakeRepositoryService{orgErr: errors.New("bad credentials")}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeAll},
		client, &fakeCollector{}, &fakeCollector{}, &fakeCollector{},
	)
	if _, err := auditor.Run(context.Background()); err == nil {
		t.Fatal("Unexpected no error")
	}
}

func TestRunFleetListingFails(t *testing.T) {
	client := &fakeRepositoryService{listErr: errors.New("something error")}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeAll},
		client, &fakeCollector{}, &fakeCollector{}, &fakeCollector{},
	)
	if _, err := auditor.Run(context.Background()); err == nil {
		t.Fatal("Unexpected no error")
	}
}

func TestRunEmptyFleet(t *testing.T) {
	client := &fakeRepositoryService{}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeAll},
		client, &fakeCollector{}, &fakeCollector{}, &fakeCollector{},
	)
	report, err := auditor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Summary.TotalRepositories)
	assert.Equal(t, 0, report.Summary.ScannedRepositories)
	assert.Empty(t, report.Repositories)
	assert.NotNil(t, report.Repositories)
}

func TestRunCustomScopeSkipsUnresolvable(t *testing.T) {
	client := &fakeRepositoryService{byName: map[string]*github.Repository{
		"app": makeRepo("app"),
	}}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeCustom, Repositories: []string{"app", "ghost"}},
		client, &fakeCollector{}, &fakeCollector{}, &fakeCollector{},
	)
	report, err := auditor.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "ghost"}, client.getCalls)
	assert.Equal(t, 2, report.Summary.TotalRepositories)
	assert.Equal(t, 1, report.Summary.ScannedRepositories)
	require.Len(t, report.Repositories, 1)
	assert.Equal(t, "app", report.Repositories[0].Name)
}

func TestRunPartialSourceFailure(t *testing.T) {
	created := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeRepositoryService{repos: []*github.Repository{makeRepo("app")}}
	code := &fakeCollector{alerts: []common.Alert{{
		ID:        "1",
		Source:    common.SourceCode,
		State:     common.AlertStateOpen,
		CreatedAt: created,
		Code:      &common.CodeAlertDetail{Severity: common.SeverityMedium, RuleID: "go/unused"},
	}}}
	dependency := &fakeCollector{err: errors.New("GraphQL rate limit exceeded")}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeAll},
		client, code, &fakeCollector{}, dependency,
	)

	report, err := auditor.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Repositories, 1)

	repo := report.Repositories[0]
	assert.Len(t, repo.CodeAlerts, 1)
	assert.Empty(t, repo.DependencyAlerts)
	assert.NotNil(t, repo.DependencyAlerts)
	assert.Contains(t, repo.SecurityFeatures.DependencyAlerts.Error, "rate limit")
	assert.Equal(t, "", repo.SecurityFeatures.CodeScanning.Error)
	assert.Equal(t, 1, repo.Metrics.TotalAlerts)
	assert.Equal(t, 1, report.Summary.ScannedRepositories)
}

func TestRunLongSourceErrorTruncated(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	client := &fakeRepositoryService{repos: []*github.Repository{makeRepo("app")}}
	secret := &fakeCollector{err: errors.New(string(long))}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeAll},
		client, &fakeCollector{}, secret, &fakeCollector{},
	)

	report, err := auditor.Run(context.Background())
	require.NoError(t, err)
	annotation := report.Repositories[0].SecurityFeatures.SecretScanning.Error
	assert.True(t, strings.HasSuffix(annotation, " ..."))
	assert.Equal(t, errAnnotationMaxLen+len(" ..."), len(annotation))
}

func TestRunCriticalScopeFilters(t *testing.T) {
	repos := []*github.Repository{
		makeRepo("payments-api"),
		makeRepo("docs"),
	}
	repos[0].Topics = []string{"production"}
	client := &fakeRepositoryService{repos: repos}
	auditor, _ := newTestAuditor(
		Config{Organization: "org", Scope: common.ScopeCritical},
		client, &fakeCollector{}, &fakeCollector{}, &fakeCollector{},
	)

	report, err := auditor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalRepositories)
	assert.Equal(t, 1, report.Summary.ScannedRepositories)
	require.Len(t, report.Repositories, 1)
	assert.Equal(t, "payments-api", report.Repositories[0].Name)
}
