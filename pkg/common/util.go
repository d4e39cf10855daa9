package common

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
)

var (
	criticalTopics    = []string{"critical", "production"}
	criticalNameParts = []string{"api", "auth"}
)

// ParseScope validates a scope value from configuration.
func ParseScope(scope string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(scope))) {
	case ScopeAll, "":
		return ScopeAll, nil
	case ScopeCritical:
		return ScopeCritical, nil
	case ScopeCustom:
		return ScopeCustom, nil
	default:
		return "", fmt.Errorf("unknown scope: %s", scope)
	}
}

// FilterByScope narrows a repository list according to the audit scope.
// Only the critical scope filters; every other value returns the list as-is.
func FilterByScope(repos []*github.Repository, scope Scope) []*github.Repository {
	if scope != ScopeCritical {
		return repos
	}
	var filtered []*github.Repository
	for _, repo := range repos {
		if IsCriticalRepository(repo) {
			filtered = append(filtered, repo)
		}
	}
	return filtered
}

// IsCriticalRepository is the critical-scope heuristic: a repository
// qualifies when it carries a recognized topic tag or its name contains a
// recognized substring.
func IsCriticalRepository(repo *github.Repository) bool {
	for _, topic := range repo.Topics {
		for _, t := range criticalTopics {
			if strings.EqualFold(topic, t) {
				return true
			}
		}
	}
	name := strings.ToLower(repo.GetName())
	for _, part := range criticalNameParts {
		if strings.Contains(name, part) {
			return true
		}
	}
	return false
}

// DedupRepositories drops duplicate entries by full name, keeping the first
// occurrence. The selector may resolve the same repository twice when an
// explicit list repeats a name.
func DedupRepositories(repos []*github.Repository) []*github.Repository {
	seen := map[string]bool{}
	var deduped []*github.Repository
	for _, repo := range repos {
		key := repo.GetFullName()
		if key == "" {
			key = repo.GetName()
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, repo)
	}
	return deduped
}

func CutString(input string, cut int) string {
	if len(input) > cut {
		return input[:cut] + " ..." // cut long text
	}
	return input
}
