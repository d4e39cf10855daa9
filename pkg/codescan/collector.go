package codescan

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/google/go-github/v57/github"

	"github.com/fleetsec/ghaudit/pkg/common"
)

const alertPageSize = 100

// alertAPI is the slice of the GitHub client this collector needs.
type alertAPI interface {
	ListCodeScanningAlerts(ctx context.Context, owner, repo string, opts *github.AlertListOptions) ([]*github.Alert, *github.Response, error)
}

type Collector struct {
	client alertAPI
	logger logging.Logger
}

func NewCollector(client alertAPI, logger logging.Logger) *Collector {
	return &Collector{
		client: client,
		logger: logger,
	}
}

// Collect retrieves the repository's open code-scanning alerts, offset page
// by offset page, stopping once a page comes back shorter than the page
// size. A 404 means code scanning has never run for the repository and
// yields an empty collection, not an error.
func (c *Collector) Collect(ctx context.Context, owner, repo string) ([]common.Alert, error) {
	var alerts []common.Alert
	opt := &github.AlertListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: alertPageSize, Page: 1},
	}
	for {
		page, resp, err := c.client.ListCodeScanningAlerts(ctx, owner, repo, opt)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				c.logger.Debugf(ctx, "No code scanning configured: repository=%s/%s", owner, repo)
				return alerts, nil
			}
			return nil, fmt.Errorf("failed to list code scanning alerts for %s/%s: %w", owner, repo, err)
		}
		for _, a := range page {
			alerts = append(alerts, convertAlert(a))
		}
		if len(page) < alertPageSize {
			break
		}
		opt.ListOptions.Page++
	}
	return alerts, nil
}

// convertAlert maps one code-scanning record into the common alert model.
// Severity normalization happens here so downstream counting never sees the
// source casing; a rule without any severity maps to unknown.
func convertAlert(a *github.Alert) common.Alert {
	severity := a.GetRule().GetSecuritySeverityLevel()
	if severity == "" {
		severity = a.GetRule().GetSeverity()
	}

	state := common.AlertStateResolved
	if a.GetState() == "open" {
		state = common.AlertStateOpen
	}
	var resolvedAt *time.Time
	if a.DismissedAt != nil {
		t := a.DismissedAt.Time
		resolvedAt = &t
	} else if a.FixedAt != nil {
		t := a.FixedAt.Time
		resolvedAt = &t
	}

	return common.Alert{
		ID:         strconv.Itoa(a.GetNumber()),
		Source:     common.SourceCode,
		State:      state,
		CreatedAt:  a.GetCreatedAt().Time,
		ResolvedAt: resolvedAt,
		Code: &common.CodeAlertDetail{
			Severity:    common.NormalizeSeverity(severity),
			RuleID:      a.GetRule().GetID(),
			Description: a.GetRule().GetDescription(),
			FilePath:    a.GetMostRecentInstance().GetLocation().GetPath(),
			Tool:        a.GetTool().GetName(),
		},
	}
}
