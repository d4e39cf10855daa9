package secretscan

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ca-risken/common/pkg/logging"
	"github.com/google/go-github/v57/github"

	"github.com/fleetsec/ghaudit/pkg/common"
)

type fakeAlertAPI struct {
	pages  [][]*github.SecretScanningAlert
	status int
	err    error
	calls  int
}

func (f *fakeAlertAPI) ListSecretScanningAlerts(ctx context.Context, owner, repo string, opts *github.SecretScanningAlertListOptions) ([]*github.SecretScanningAlert, *github.Response, error) {
	if f.err != nil {
		var resp *github.Response
		if f.status != 0 {
			resp = &github.Response{Response: &http.Response{StatusCode: f.status}}
		}
		return nil, resp, f.err
	}
	page := f.calls
	f.calls++
	if page >= len(f.pages) {
		return nil, &github.Response{}, nil
	}
	return f.pages[page], &github.Response{}, nil
}

func TestCollect(t *testing.T) {
	created := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		api       *fakeAlertAPI
		wantCount int
		wantError bool
	}{
		{
			name: "OK alerts returned",
			api: &fakeAlertAPI{pages: [][]*github.SecretScanningAlert{{
				{Number: github.Int(1), State: github.String("open"), CreatedAt: &github.Timestamp{Time: created}},
				{Number: github.Int(2), State: github.String("resolved"), CreatedAt: &github.Timestamp{Time: created}},
			}}},
			wantCount: 2,
		},
		{
			name:      "OK 404 treated as no alerts",
			api:       &fakeAlertAPI{err: errors.New("not found"), status: http.StatusNotFound},
			wantCount: 0,
		},
		{
			name:      "OK 403 treated as no alerts",
			api:       &fakeAlertAPI{err: errors.New("forbidden"), status: http.StatusForbidden},
			wantCount: 0,
		},
		{
			name:      "NG other error propagates",
			api:       &fakeAlertAPI{err: errors.New("something error"), status: http.StatusBadGateway},
			wantError: true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			collector := NewCollector(c.api, logging.NewLogger())
			got, err := collector.Collect(context.Background(), "org", "app")
			if c.wantError && err == nil {
				t.Fatal("Unexpected no error")
			}
			if !c.wantError && err != nil {
				t.Fatalf("Unexpected error occured, err=%+v", err)
			}
			if len(got) != c.wantCount {
				t.Fatalf("Unexpected alert count: want=%d, got=%d", c.wantCount, len(got))
			}
		})
	}
}

func TestConvertAlert(t *testing.T) {
	created := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	resolved := created.Add(72 * time.Hour)
	alert := &github.SecretScanningAlert{
		Number:                 github.Int(11),
		State:                  github.String("resolved"),
		CreatedAt:              &github.Timestamp{Time: created},
		ResolvedAt:             &github.Timestamp{Time: resolved},
		SecretType:             github.String("github_personal_access_token"),
		SecretTypeDisplayName:  github.String("GitHub Personal Access Token"),
		PushProtectionBypassed: github.Bool(true),
	}
	got := convertAlert(alert)
	if got.ID != "11" || got.Source != common.SourceSecret || got.State != common.AlertStateResolved {
		t.Fatalf("Unexpected common fields: got=%+v", got)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(resolved) {
		t.Fatalf("Unexpected resolvedAt: got=%+v", got.ResolvedAt)
	}
	want := common.SecretAlertDetail{
		SecretType:             "github_personal_access_token",
		SecretTypeLabel:        "GitHub Personal Access Token",
		PushProtectionBypassed: true,
	}
	if *got.Secret != want {
		t.Fatalf("Unexpected detail: want=%+v, got=%+v", want, *got.Secret)
	}
}
