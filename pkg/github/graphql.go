package github

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"
)

// DependencyAlert is one vulnerabilityAlerts node flattened into a neutral
// shape so callers never touch GraphQL types.
type DependencyAlert struct {
	Number          int
	State           string
	CreatedAt       time.Time
	FixedAt         *time.Time
	DismissedAt     *time.Time
	Severity        string
	PackageName     string
	Ecosystem       string
	AdvisorySummary string
	CVSSScore       float64
}

// DependencyAlertPage is one page of dependency alerts plus the cursor
// needed to fetch the next one.
type DependencyAlertPage struct {
	Alerts      []DependencyAlert
	HasNextPage bool
	EndCursor   githubv4.String
}

type dependencyAlertNode struct {
	Number                int
	State                 string
	CreatedAt             githubv4.DateTime
	FixedAt               *githubv4.DateTime
	DismissedAt           *githubv4.DateTime
	SecurityVulnerability struct {
		Severity string
		Package  struct {
			Name      string
			Ecosystem string
		}
	}
	SecurityAdvisory struct {
		Summary string
		CVSS    struct {
			Score float64
		}
	}
}

type dependencyAlertQuery struct {
	Repository struct {
		VulnerabilityAlerts struct {
			Nodes    []dependencyAlertNode
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
		} `graphql:"vulnerabilityAlerts(first: 100, after: $cursor, states: OPEN)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// ListDependencyAlerts fetches one page of open Dependabot alerts via the
// GraphQL relationship query. cursor is nil for the first page; callers
// carry EndCursor forward while HasNextPage holds.
func (g *auditGitHubClient) ListDependencyAlerts(ctx context.Context, owner, repo string, cursor *githubv4.String) (*DependencyAlertPage, error) {
	var q dependencyAlertQuery
	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"cursor": cursor, // typed nil marshals as null on the first page
	}
	if err := g.graphql.Query(ctx, &q, variables); err != nil {
		return nil, fmt.Errorf("failed to query vulnerability alerts for %s/%s: %w", owner, repo, err)
	}
	page := &DependencyAlertPage{
		HasNextPage: q.Repository.VulnerabilityAlerts.PageInfo.HasNextPage,
		EndCursor:   q.Repository.VulnerabilityAlerts.PageInfo.EndCursor,
	}
	for _, node := range q.Repository.VulnerabilityAlerts.Nodes {
		page.Alerts = append(page.Alerts, convertDependencyAlert(node))
	}
	return page, nil
}

func convertDependencyAlert(node dependencyAlertNode) DependencyAlert {
	alert := DependencyAlert{
		Number:          node.Number,
		State:           node.State,
		CreatedAt:       node.CreatedAt.Time,
		Severity:        node.SecurityVulnerability.Severity,
		PackageName:     node.SecurityVulnerability.Package.Name,
		Ecosystem:       node.SecurityVulnerability.Package.Ecosystem,
		AdvisorySummary: node.SecurityAdvisory.Summary,
		CVSSScore:       node.SecurityAdvisory.CVSS.Score,
	}
	if node.FixedAt != nil {
		t := node.FixedAt.Time
		alert.FixedAt = &t
	}
	if node.DismissedAt != nil {
		t := node.DismissedAt.Time
		alert.DismissedAt = &t
	}
	return alert
}
