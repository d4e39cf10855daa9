package secretscan

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
	ListSecretScanningAlerts(ctx context.Context, owner, repo string, opts *github.SecretScanningAlertListOptions) ([]*github.SecretScanningAlert, *github.Response, error)
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

// Collect retrieves the repository's secret-scanning alerts across all
// states, so resolution timestamps feed the MTTR metric. Permission errors
// and not-found responses mean no alerts are available and yield an empty
// collection; any other error is a source-level failure.
func (c *Collector) Collect(ctx context.Context, owner, repo string) ([]common.Alert, error) {
	var alerts []common.Alert
	opt := &github.SecretScanningAlertListOptions{
		ListOptions: github.ListOptions{PerPage: alertPageSize, Page: 1},
	}
	for {
		page, resp, err := c.client.ListSecretScanningAlerts(ctx, owner, repo, opt)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound) {
				c.logger.Debugf(ctx, "No secret scanning alerts available: repository=%s/%s, status=%d", owner, repo, resp.StatusCode)
				return alerts, nil
			}
			return nil, fmt.Errorf("failed to list secret scanning alerts for %s/%s: %w", owner, repo, err)
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

func convertAlert(a *github.SecretScanningAlert) common.Alert {
	state := common.AlertStateResolved
	if a.GetState() == "open" {
		state = common.AlertStateOpen
	}
	var resolvedAt *time.Time
	if a.ResolvedAt != nil {
		t := a.ResolvedAt.Time
		resolvedAt = &t
	}
	return common.Alert{
		ID:         strconv.Itoa(a.GetNumber()),
		Source:     common.SourceSecret,
		State:      state,
		CreatedAt:  a.GetCreatedAt().Time,
		ResolvedAt: resolvedAt,
		Secret: &common.SecretAlertDetail{
			SecretType:             a.GetSecretType(),
			SecretTypeLabel:        a.GetSecretTypeDisplayName(),
			PushProtectionBypassed: a.GetPushProtectionBypassed(),
		},
	}
}
