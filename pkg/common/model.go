package common

import (
	"encoding/json"
	"time"
)

// SchemaVersion is embedded in every report's metadata.version field.
// Consumers match on it before parsing the rest of the document.
const SchemaVersion = "1.0.0"

// AuditRun identifies one audit invocation. Created once at startup,
// never mutated afterwards.
type AuditRun struct {
	Organization string    `json:"organization"`
	AuditDate    time.Time `json:"auditDate"`
	Scope        string    `json:"scope"`
	Version      string    `json:"version"`
}

// Scope determines which repositories are audited.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeCritical Scope = "critical"
	ScopeCustom   Scope = "custom"
)

// AlertSource tags which scanning subsystem produced an alert.
type AlertSource string

const (
	SourceCode       AlertSource = "code"
	SourceSecret     AlertSource = "secret"
	SourceDependency AlertSource = "dependency"
)

// AlertState is the normalized lifecycle state of an alert.
type AlertState string

const (
	AlertStateOpen     AlertState = "open"
	AlertStateResolved AlertState = "resolved"
)

// Alert is the common model for a single finding. Exactly one of the
// variant payloads (Code/Secret/Dependency) is set, matching Source.
type Alert struct {
	ID         string      `json:"id"`
	Source     AlertSource `json:"source"`
	State      AlertState  `json:"state"`
	CreatedAt  time.Time   `json:"createdAt"`
	ResolvedAt *time.Time  `json:"resolvedAt,omitempty"`

	Code       *CodeAlertDetail       `json:"code,omitempty"`
	Secret     *SecretAlertDetail     `json:"secret,omitempty"`
	Dependency *DependencyAlertDetail `json:"dependency,omitempty"`
}

// CodeAlertDetail holds static-analysis specific fields.
type CodeAlertDetail struct {
	Severity    Severity `json:"severity"`
	RuleID      string   `json:"ruleId"`
	Description string   `json:"description"`
	FilePath    string   `json:"filePath,omitempty"`
	Tool        string   `json:"tool,omitempty"`
}

// SecretAlertDetail holds exposed-credential specific fields.
type SecretAlertDetail struct {
	SecretType             string `json:"secretType"`
	SecretTypeLabel        string `json:"secretTypeLabel,omitempty"`
	PushProtectionBypassed bool   `json:"pushProtectionBypassed"`
}

// DependencyAlertDetail holds dependency-vulnerability specific fields.
type DependencyAlertDetail struct {
	Severity        Severity `json:"severity"`
	Package         string   `json:"package"`
	Ecosystem       string   `json:"ecosystem,omitempty"`
	AdvisorySummary string   `json:"advisorySummary,omitempty"`
	CVSSScore       float64  `json:"cvssScore,omitempty"`
}

// AlertSeverity returns the normalized severity of the alert. Secret alerts
// carry no severity; the second return value reports whether one exists.
func (a *Alert) AlertSeverity() (Severity, bool) {
	switch {
	case a.Code != nil:
		return a.Code.Severity, true
	case a.Dependency != nil:
		return a.Dependency.Severity, true
	default:
		return SeverityUnknown, false
	}
}

// ProbeState is the internal three-valued outcome of a feature probe.
// Unknown means the probe itself failed, so enablement could not be
// determined. It collapses to a boolean only at the output boundary.
type ProbeState string

const (
	ProbeEnabled  ProbeState = "enabled"
	ProbeDisabled ProbeState = "disabled"
	ProbeUnknown  ProbeState = "unknown"
)

// FeatureProbe is the result of probing one security capability.
type FeatureProbe struct {
	State ProbeState
	Error string
}

// Annotate records a probe or collection error without losing earlier ones.
func (p *FeatureProbe) Annotate(msg string) {
	if p.Error != "" {
		p.Error = p.Error + "; " + msg
		return
	}
	p.Error = msg
}

// SecurityFeatureStatus records which security capabilities are enabled
// for one repository, with per-feature error annotations when a probe
// or alert collection failed.
type SecurityFeatureStatus struct {
	CodeScanning        FeatureProbe
	CodeScanningLastRun *time.Time
	SecretScanning      FeatureProbe
	PushProtection      bool
	DependencyAlerts    FeatureProbe
	BranchProtection    FeatureProbe
}

// CodeScanningEnabled collapses the code-scanning probe to a boolean.
func (s *SecurityFeatureStatus) CodeScanningEnabled() bool {
	return s.CodeScanning.State == ProbeEnabled
}

// SecretScanningEnabled collapses the secret-scanning probe to a boolean.
// An unknown probe result counts as enabled: permission errors against the
// secret-scanning API must not produce false negatives.
func (s *SecurityFeatureStatus) SecretScanningEnabled() bool {
	return s.SecretScanning.State == ProbeEnabled || s.SecretScanning.State == ProbeUnknown
}

// DependencyAlertsEnabled collapses the dependency-alerting probe to a boolean.
func (s *SecurityFeatureStatus) DependencyAlertsEnabled() bool {
	return s.DependencyAlerts.State == ProbeEnabled
}

// BranchProtectionEnabled collapses the branch-protection probe to a boolean.
func (s *SecurityFeatureStatus) BranchProtectionEnabled() bool {
	return s.BranchProtection.State == ProbeEnabled
}

type featureStatusView struct {
	CodeScanning          bool       `json:"codeScanning"`
	CodeScanningError     string     `json:"codeScanningError,omitempty"`
	CodeScanningLastRun   *time.Time `json:"codeScanningLastRun,omitempty"`
	SecretScanning        bool       `json:"secretScanning"`
	SecretScanningError   string     `json:"secretScanningError,omitempty"`
	PushProtection        bool       `json:"pushProtection"`
	DependencyAlerts      bool       `json:"dependencyAlerts"`
	DependencyAlertsError string     `json:"dependencyAlertsError,omitempty"`
	BranchProtection      bool       `json:"branchProtection"`
	BranchProtectionError string     `json:"branchProtectionError,omitempty"`
}

// MarshalJSON collapses the three-valued probe results to the boolean
// contract exposed to report consumers.
func (s SecurityFeatureStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(featureStatusView{
		CodeScanning:          s.CodeScanningEnabled(),
		CodeScanningError:     s.CodeScanning.Error,
		CodeScanningLastRun:   s.CodeScanningLastRun,
		SecretScanning:        s.SecretScanningEnabled(),
		SecretScanningError:   s.SecretScanning.Error,
		PushProtection:        s.PushProtection,
		DependencyAlerts:      s.DependencyAlertsEnabled(),
		DependencyAlertsError: s.DependencyAlerts.Error,
		BranchProtection:      s.BranchProtectionEnabled(),
		BranchProtectionError: s.BranchProtection.Error,
	})
}

// RepositorySummary is the per-repository audit result. It is owned by the
// aggregator, populated during that repository's processing pass and frozen
// once appended to the run's repository list.
type RepositorySummary struct {
	Name             string                `json:"name"`
	FullName         string                `json:"fullName"`
	URL              string                `json:"url,omitempty"`
	Visibility       string                `json:"visibility,omitempty"`
	DefaultBranch    string                `json:"defaultBranch,omitempty"`
	UpdatedAt        *time.Time            `json:"updatedAt,omitempty"`
	SecurityFeatures SecurityFeatureStatus `json:"securityFeatures"`
	CodeAlerts       []Alert               `json:"codeScanningAlerts"`
	SecretAlerts     []Alert               `json:"secretScanningAlerts"`
	DependencyAlerts []Alert               `json:"dependencyAlerts"`
	Metrics          RepositoryMetrics     `json:"metrics"`
}

// RepositoryMetrics holds the derived per-repository counts.
// Invariant: TotalAlerts == OpenAlerts + ClosedAlerts.
type RepositoryMetrics struct {
	TotalAlerts           int     `json:"totalAlerts"`
	OpenAlerts            int     `json:"openAlerts"`
	ClosedAlerts          int     `json:"closedAlerts"`
	MeanTimeToResolveDays float64 `json:"meanTimeToResolveDays"`
}

// FleetSummary accumulates running totals across all processed repositories.
// Add is commutative, so repository processing order never changes the result.
type FleetSummary struct {
	TotalRepositories   int `json:"totalRepositories"`
	ScannedRepositories int `json:"scannedRepositories"`
	TotalAlerts         int `json:"totalAlerts"`
	CriticalAlerts      int `json:"criticalAlerts"`
	HighAlerts          int `json:"highAlerts"`
	MediumAlerts        int `json:"mediumAlerts"`
	LowAlerts           int `json:"lowAlerts"`
	SecretAlerts        int `json:"secretAlerts"`
	DependencyAlerts    int `json:"dependencyAlerts"`
	CodeAlerts          int `json:"codeAlerts"`
}

// Add folds one repository summary into the fleet totals.
func (f *FleetSummary) Add(r *RepositorySummary) {
	f.ScannedRepositories++
	f.CodeAlerts += len(r.CodeAlerts)
	f.SecretAlerts += len(r.SecretAlerts)
	f.DependencyAlerts += len(r.DependencyAlerts)
	for _, alerts := range [][]Alert{r.CodeAlerts, r.SecretAlerts, r.DependencyAlerts} {
		for i := range alerts {
			f.TotalAlerts++
			severity, ok := alerts[i].AlertSeverity()
			if !ok {
				continue
			}
			switch severity {
			case SeverityCritical:
				f.CriticalAlerts++
			case SeverityHigh:
				f.HighAlerts++
			case SeverityMedium:
				f.MediumAlerts++
			case SeverityLow:
				f.LowAlerts++
			}
		}
	}
}

// FrameworkScore is one framework's 0-100 score with a short explanation.
type FrameworkScore struct {
	Score   float64 `json:"score"`
	Details string  `json:"details"`
}

// ComplianceResult is computed once after all repositories are processed
// and is read-only afterwards.
type ComplianceResult struct {
	OverallScore float64                   `json:"overallScore"`
	Frameworks   map[string]FrameworkScore `json:"frameworks"`
}

// Report is the single structured document the engine hands to downstream
// report and issue generators. Field names are a compatibility contract;
// renaming or removing one is a breaking change for consumers.
type Report struct {
	Metadata     AuditRun            `json:"metadata"`
	Summary      FleetSummary        `json:"summary"`
	Repositories []RepositorySummary `json:"repositories"`
	Compliance   ComplianceResult    `json:"compliance"`
}
