package compliance

import (
	"strings"

	"github.com/ca-risken/common/pkg/logging"

	"github.com/fleetsec/ghaudit/pkg/common"
)

// Framework names used as keys in the report's compliance.frameworks map.
// Renaming one breaks consumers comparing against historical reports.
const (
	FrameworkOWASP = "OWASP Top 10"
	FrameworkNIST  = "NIST CSF"
	FrameworkCIS   = "CIS Controls"
)

type Scorer struct {
	conf   *Config
	logger logging.Logger
}

func NewScorer(conf *Config, logger logging.Logger) *Scorer {
	if conf == nil {
		conf = DefaultConfig()
	}
	return &Scorer{
		conf:   conf,
		logger: logger,
	}
}

// Score runs once over the completed repository list and produces the
// overall score plus the three framework scores. The formulas are a
// protocol contract: they must match historical reports exactly.
// With zero repositories scoring is skipped entirely.
func (s *Scorer) Score(repos []common.RepositorySummary) common.ComplianceResult {
	if len(repos) == 0 {
		return common.ComplianceResult{
			OverallScore: 0,
			Frameworks:   map[string]common.FrameworkScore{},
		}
	}
	return common.ComplianceResult{
		OverallScore: s.overallScore(repos),
		Frameworks: map[string]common.FrameworkScore{
			FrameworkOWASP: s.scoreOWASP(repos),
			FrameworkNIST:  s.scoreNIST(repos),
			FrameworkCIS:   s.scoreCIS(repos),
		},
	}
}

// overallScore averages three per-repository sub-scores across the fleet,
// scales each to 0-100, then takes the unweighted mean of the three.
func (s *Scorer) overallScore(repos []common.RepositorySummary) float64 {
	var scanning, protection, resolution float64
	for i := range repos {
		scanning += scanningSubScore(&repos[i])
		protection += protectionSubScore(&repos[i])
		resolution += resolutionSubScore(&repos[i])
	}
	n := float64(len(repos))
	return (scanning/n*100 + protection/n*100 + resolution/n*100) / 3
}

func scanningSubScore(r *common.RepositorySummary) float64 {
	score := 0.0
	if r.SecurityFeatures.CodeScanningEnabled() {
		score += 0.33
	}
	if r.SecurityFeatures.SecretScanningEnabled() {
		score += 0.33
	}
	if r.SecurityFeatures.DependencyAlertsEnabled() {
		score += 0.34
	}
	return score
}

func protectionSubScore(r *common.RepositorySummary) float64 {
	score := 0.0
	if r.SecurityFeatures.BranchProtectionEnabled() {
		score += 0.5
	}
	if r.SecurityFeatures.PushProtection {
		score += 0.5
	}
	return score
}

// resolutionSubScore: a repository with zero alerts is fully compliant on
// this axis.
func resolutionSubScore(r *common.RepositorySummary) float64 {
	if r.Metrics.TotalAlerts == 0 {
		return 1
	}
	return float64(r.Metrics.ClosedAlerts) / float64(r.Metrics.TotalAlerts)
}

// scoreOWASP is injection/access/exposure-oriented: keyword-absence credits
// over code-scanning rule identifiers, fleet-wide secret and dependency
// volume credits, and a coverage term for code scanning.
func (s *Scorer) scoreOWASP(repos []common.RepositorySummary) common.FrameworkScore {
	score := 0.0
	if countCodeAlertsMatching(repos, s.conf.InjectionKeywords) == 0 {
		score += 10
	}
	if countCodeAlertsMatching(repos, s.conf.AuthKeywords) == 0 {
		score += 10
	}
	if totalSecretAlerts(repos) == 0 {
		score += 20
	}
	if countCodeAlertsMatching(repos, s.conf.ConfigKeywords) == 0 {
		score += 10
	}
	switch dep := totalDependencyAlerts(repos); {
	case dep < 5:
		score += 20
	case dep < 20:
		score += 10
	}
	score += 30 * enabledFraction(repos, func(r *common.RepositorySummary) bool {
		return r.SecurityFeatures.CodeScanningEnabled()
	})
	return common.FrameworkScore{
		Score:   capScore(score),
		Details: "Heuristic coverage of injection, access control, secret exposure and vulnerable dependency categories",
	}
}

// scoreNIST is lifecycle-function oriented: flat credits for the inventory
// and recovery functions, coverage terms for protect/detect, and an MTTR
// credit for respond.
func (s *Scorer) scoreNIST(repos []common.RepositorySummary) common.FrameworkScore {
	score := 20.0 // Identify: the audit inventory itself
	score += 20 * enabledFraction(repos, func(r *common.RepositorySummary) bool {
		return r.SecurityFeatures.BranchProtectionEnabled()
	})
	score += 20 * enabledFraction(repos, func(r *common.RepositorySummary) bool {
		return r.SecurityFeatures.CodeScanningEnabled() ||
			r.SecurityFeatures.SecretScanningEnabled() ||
			r.SecurityFeatures.DependencyAlertsEnabled()
	})
	switch mttr := fleetAverageMTTR(repos); {
	case mttr < 7:
		score += 20
	case mttr < 30:
		score += 10
	}
	score += 20 // Recover: documented process credit
	return common.FrameworkScore{
		Score:   capScore(score),
		Details: "Identify, Protect, Detect, Respond and Recover function coverage across the fleet",
	}
}

// scoreCIS is control-catalog oriented: coverage terms for the three
// scanning controls plus a flat process credit.
func (s *Scorer) scoreCIS(repos []common.RepositorySummary) common.FrameworkScore {
	score := 0.0
	score += 25 * enabledFraction(repos, func(r *common.RepositorySummary) bool {
		return r.SecurityFeatures.DependencyAlertsEnabled()
	})
	score += 25 * enabledFraction(repos, func(r *common.RepositorySummary) bool {
		return r.SecurityFeatures.CodeScanningEnabled()
	})
	score += 25 * enabledFraction(repos, func(r *common.RepositorySummary) bool {
		return r.SecurityFeatures.SecretScanningEnabled()
	})
	score += 25 // continuous vulnerability management process credit
	return common.FrameworkScore{
		Score:   capScore(score),
		Details: "Software vulnerability, secret hygiene and dependency management control coverage",
	}
}

func enabledFraction(repos []common.RepositorySummary, enabled func(*common.RepositorySummary) bool) float64 {
	count := 0
	for i := range repos {
		if enabled(&repos[i]) {
			count++
		}
	}
	return float64(count) / float64(len(repos))
}

func countCodeAlertsMatching(repos []common.RepositorySummary, keywords []string) int {
	count := 0
	for i := range repos {
		for j := range repos[i].CodeAlerts {
			detail := repos[i].CodeAlerts[j].Code
			if detail == nil {
				continue
			}
			ruleID := strings.ToLower(detail.RuleID)
			for _, kw := range keywords {
				if kw != "" && strings.Contains(ruleID, strings.ToLower(kw)) {
					count++
					break
				}
			}
		}
	}
	return count
}

func totalSecretAlerts(repos []common.RepositorySummary) int {
	count := 0
	for i := range repos {
		count += len(repos[i].SecretAlerts)
	}
	return count
}

func totalDependencyAlerts(repos []common.RepositorySummary) int {
	count := 0
	for i := range repos {
		count += len(repos[i].DependencyAlerts)
	}
	return count
}

func fleetAverageMTTR(repos []common.RepositorySummary) float64 {
	total := 0.0
	for i := range repos {
		total += repos[i].Metrics.MeanTimeToResolveDays
	}
	return total / float64(len(repos))
}

func capScore(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
