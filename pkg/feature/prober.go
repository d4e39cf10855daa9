package feature

import (
	"context"
	"net/http"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/google/go-github/v57/github"

	"github.com/fleetsec/ghaudit/pkg/common"
)

const statusEnabled = "enabled"

// githubAPI is the slice of the GitHub client the prober needs.
type githubAPI interface {
	ListCodeScanningAnalyses(ctx context.Context, owner, repo string, opts *github.AnalysesListOptions) ([]*github.ScanningAnalysis, *github.Response, error)
	ListSecretScanningAlerts(ctx context.Context, owner, repo string, opts *github.SecretScanningAlertListOptions) ([]*github.SecretScanningAlert, *github.Response, error)
	GetVulnerabilityAlertsEnabled(ctx context.Context, owner, repo string) (bool, *github.Response, error)
	GetBranchProtection(ctx context.Context, owner, repo, branch string) (*github.Protection, *github.Response, error)
}

type Prober struct {
	client githubAPI
	logger logging.Logger
}

func NewProber(client githubAPI, logger logging.Logger) *Prober {
	return &Prober{
		client: client,
		logger: logger,
	}
}

// Probe checks the four security capabilities for one repository. Each probe
// is independent; a failing probe logs a warning and annotates its result
// but never aborts the repository.
func (p *Prober) Probe(ctx context.Context, owner string, repo *github.Repository) common.SecurityFeatureStatus {
	name := repo.GetName()
	status := common.SecurityFeatureStatus{
		PushProtection: pushProtectionEnabled(repo),
	}

	status.CodeScanning, status.CodeScanningLastRun = p.probeCodeScanning(ctx, owner, name)
	status.SecretScanning = p.probeSecretScanning(ctx, owner, name)
	status.DependencyAlerts = p.probeDependencyAlerts(ctx, owner, name)
	status.BranchProtection = p.probeBranchProtection(ctx, owner, name, repo.GetDefaultBranch())
	return status
}

// probeCodeScanning treats code scanning as enabled iff at least one prior
// analysis run can be retrieved, recording the most recent run timestamp.
func (p *Prober) probeCodeScanning(ctx context.Context, owner, name string) (common.FeatureProbe, *time.Time) {
	analyses, resp, err := p.client.ListCodeScanningAnalyses(ctx, owner, name, &github.AnalysesListOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		if isStatus(resp, http.StatusNotFound) {
			return common.FeatureProbe{State: common.ProbeDisabled}, nil
		}
		p.logger.Warnf(ctx, "Failed to probe code scanning: repository=%s/%s, err=%+v", owner, name, err)
		return common.FeatureProbe{State: common.ProbeUnknown, Error: err.Error()}, nil
	}
	if len(analyses) == 0 {
		return common.FeatureProbe{State: common.ProbeDisabled}, nil
	}
	lastRun := analyses[0].GetCreatedAt().Time
	return common.FeatureProbe{State: common.ProbeEnabled}, &lastRun
}

// probeSecretScanning: any response with data (even an empty list) means the
// credential can read secret alerts, which implies the feature is on. A 404
// means it is off. Any other error is recorded as unknown, which collapses
// to enabled at the output boundary so permission errors do not produce
// false negatives.
func (p *Prober) probeSecretScanning(ctx context.Context, owner, name string) common.FeatureProbe {
	_, resp, err := p.client.ListSecretScanningAlerts(ctx, owner, name, &github.SecretScanningAlertListOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		if isStatus(resp, http.StatusNotFound) {
			return common.FeatureProbe{State: common.ProbeDisabled}
		}
		p.logger.Warnf(ctx, "Failed to probe secret scanning: repository=%s/%s, err=%+v", owner, name, err)
		return common.FeatureProbe{State: common.ProbeUnknown, Error: err.Error()}
	}
	return common.FeatureProbe{State: common.ProbeEnabled}
}

// probeDependencyAlerts reads the repository's vulnerability-alerts flag
// directly. No pagination, no fallback.
func (p *Prober) probeDependencyAlerts(ctx context.Context, owner, name string) common.FeatureProbe {
	enabled, _, err := p.client.GetVulnerabilityAlertsEnabled(ctx, owner, name)
	if err != nil {
		p.logger.Warnf(ctx, "Failed to probe vulnerability alerts: repository=%s/%s, err=%+v", owner, name, err)
		return common.FeatureProbe{State: common.ProbeUnknown, Error: err.Error()}
	}
	if !enabled {
		return common.FeatureProbe{State: common.ProbeDisabled}
	}
	return common.FeatureProbe{State: common.ProbeEnabled}
}

// probeBranchProtection: a successful protection fetch for the default
// branch implies enabled; any failure implies disabled. Not-configured and
// access-denied are deliberately not distinguished.
func (p *Prober) probeBranchProtection(ctx context.Context, owner, name, branch string) common.FeatureProbe {
	if branch == "" {
		return common.FeatureProbe{State: common.ProbeDisabled}
	}
	protection, _, err := p.client.GetBranchProtection(ctx, owner, name, branch)
	if err != nil || protection == nil {
		return common.FeatureProbe{State: common.ProbeDisabled}
	}
	return common.FeatureProbe{State: common.ProbeEnabled}
}

// pushProtectionEnabled reads the push-protection flag from the repository's
// security settings when the listing includes them.
func pushProtectionEnabled(repo *github.Repository) bool {
	sa := repo.GetSecurityAndAnalysis()
	if sa == nil || sa.SecretScanningPushProtection == nil {
		return false
	}
	return sa.SecretScanningPushProtection.GetStatus() == statusEnabled
}

func isStatus(resp *github.Response, code int) bool {
	return resp != nil && resp.StatusCode == code
}
