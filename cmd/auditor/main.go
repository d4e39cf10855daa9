package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/ca-risken/common/pkg/profiler"
	"github.com/ca-risken/common/pkg/tracer"
	"github.com/gassara-kys/envconfig"

	"github.com/fleetsec/ghaudit/pkg/audit"
	"github.com/fleetsec/ghaudit/pkg/codescan"
	"github.com/fleetsec/ghaudit/pkg/common"
	"github.com/fleetsec/ghaudit/pkg/compliance"
	"github.com/fleetsec/ghaudit/pkg/dependency"
	"github.com/fleetsec/ghaudit/pkg/feature"
	githubcli "github.com/fleetsec/ghaudit/pkg/github"
	"github.com/fleetsec/ghaudit/pkg/secretscan"
)

const (
	nameSpace   = "ghaudit"
	serviceName = "auditor"
)

var (
	appLogger            = logging.NewLogger()
	samplingRate float64 = 0.3000
)

func getFullServiceName() string {
	return fmt.Sprintf("%s.%s", nameSpace, serviceName)
}

type AppConfig struct {
	EnvName         string   `default:"local" split_words:"true"`
	TraceExporter   string   `split_words:"true" default:"nop"`
	ProfileExporter string   `split_words:"true" default:"nop"`
	ProfileTypes    []string `split_words:"true"`
	TraceDebug      bool     `split_words:"true" default:"false"`

	// github
	GithubToken   string `required:"true" split_words:"true"`
	GithubBaseURL string `split_words:"true" default:""`

	// audit
	Organization string `required:"true"`
	Scope        string `default:"all"`
	Repositories string `default:""` // comma-separated, scope=custom only

	// output
	OutputPath string `split_words:"true" default:"audit-report.json"`

	// compliance
	ComplianceConfigPath string `split_words:"true" default:""`
}

func main() {
	ctx := context.Background()
	var conf AppConfig
	err := envconfig.Process("", &conf)
	if err != nil {
		appLogger.Fatal(ctx, err.Error())
	}

	pTypes, err := profiler.ConvertProfileTypeFrom(conf.ProfileTypes)
	if err != nil {
		appLogger.Fatal(ctx, err.Error())
	}
	pExporter, err := profiler.ConvertExporterTypeFrom(conf.ProfileExporter)
	if err != nil {
		appLogger.Fatal(ctx, err.Error())
	}
	pc := profiler.Config{
		ServiceName:  getFullServiceName(),
		EnvName:      conf.EnvName,
		ProfileTypes: pTypes,
		ExporterType: pExporter,
	}
	err = pc.Start()
	if err != nil {
		appLogger.Fatal(ctx, err.Error())
	}
	defer pc.Stop()

	tc := &tracer.Config{
		ServiceName:  getFullServiceName(),
		Environment:  conf.EnvName,
		Debug:        conf.TraceDebug,
		SamplingRate: &samplingRate,
	}
	tracer.Start(tc)
	defer tracer.Stop()

	scope, err := common.ParseScope(conf.Scope)
	if err != nil {
		appLogger.Fatalf(ctx, "Invalid scope: %+v", err)
	}
	repositories := splitRepositoryList(conf.Repositories)
	if scope == common.ScopeCustom && len(repositories) == 0 {
		appLogger.Fatal(ctx, "Scope custom requires a repository list")
	}

	githubClient, err := githubcli.NewGithubClient(conf.GithubToken, conf.GithubBaseURL, appLogger)
	if err != nil {
		appLogger.Fatalf(ctx, "Failed to create github client, err=%+v", err)
	}
	complianceConf, err := compliance.LoadConfig(conf.ComplianceConfigPath)
	if err != nil {
		appLogger.Fatalf(ctx, "Failed to load compliance config, err=%+v", err)
	}

	auditor := audit.NewAuditor(
		audit.Config{
			Organization: conf.Organization,
			Scope:        scope,
			Repositories: repositories,
		},
		githubClient,
		feature.NewProber(githubClient, appLogger),
		codescan.NewCollector(githubClient, appLogger),
		secretscan.NewCollector(githubClient, appLogger),
		dependency.NewCollector(githubClient, appLogger),
		compliance.NewScorer(complianceConf, appLogger),
		appLogger,
	)

	appLogger.Infof(ctx, "Start security audit, organization=%s, scope=%s", conf.Organization, scope)
	report, err := auditor.Run(ctx)
	if err != nil {
		appLogger.Fatalf(ctx, "Audit failed, err=%+v", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		appLogger.Fatalf(ctx, "Failed to marshal report, err=%+v", err)
	}
	if err := os.WriteFile(conf.OutputPath, data, 0600); err != nil {
		appLogger.Fatalf(ctx, "Failed to write report to %s, err=%+v", conf.OutputPath, err)
	}
	appLogger.Infof(ctx, "Audit completed, repositories=%d, total_alerts=%d, overall_score=%.1f, output=%s",
		report.Summary.ScannedRepositories, report.Summary.TotalAlerts, report.Compliance.OverallScore, conf.OutputPath)
}

func splitRepositoryList(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
