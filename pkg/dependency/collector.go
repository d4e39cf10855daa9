package dependency

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/shurcooL/githubv4"

	"github.com/fleetsec/ghaudit/pkg/common"
	githubcli "github.com/fleetsec/ghaudit/pkg/github"
)

// alertAPI is the slice of the GitHub client this collector needs.
type alertAPI interface {
	ListDependencyAlerts(ctx context.Context, owner, repo string, cursor *githubv4.String) (*githubcli.DependencyAlertPage, error)
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

// Collect retrieves the repository's open dependency alerts through the
// cursor-paginated relationship query, carrying the opaque cursor forward
// while more pages remain. A failed page fetch ends the run for this source;
// the caller absorbs it as a source-level failure, not a repository failure.
func (c *Collector) Collect(ctx context.Context, owner, repo string) ([]common.Alert, error) {
	var alerts []common.Alert
	var cursor *githubv4.String
	for {
		page, err := c.client.ListDependencyAlerts(ctx, owner, repo, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to collect dependency alerts for %s/%s: %w", owner, repo, err)
		}
		for _, a := range page.Alerts {
			alerts = append(alerts, convertAlert(a))
		}
		if !page.HasNextPage {
			break
		}
		end := page.EndCursor
		cursor = &end
	}
	return alerts, nil
}

func convertAlert(a githubcli.DependencyAlert) common.Alert {
	state := common.AlertStateResolved
	if strings.EqualFold(a.State, "open") {
		state = common.AlertStateOpen
	}
	var resolvedAt *time.Time
	if a.FixedAt != nil {
		resolvedAt = a.FixedAt
	} else if a.DismissedAt != nil {
		resolvedAt = a.DismissedAt
	}
	return common.Alert{
		ID:         strconv.Itoa(a.Number),
		Source:     common.SourceDependency,
		State:      state,
		CreatedAt:  a.CreatedAt,
		ResolvedAt: resolvedAt,
		Dependency: &common.DependencyAlertDetail{
			Severity:        common.NormalizeSeverity(a.Severity),
			Package:         a.PackageName,
			Ecosystem:       a.Ecosystem,
			AdvisorySummary: a.AdvisorySummary,
			CVSSScore:       a.CVSSScore,
		},
	}
}
