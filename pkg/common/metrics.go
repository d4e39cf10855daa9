package common

// CalculateMetrics derives the per-repository counts from the three alert
// collections. An alert counts as open when its state is open or it carries
// no resolution timestamp. MTTR averages resolution time over alerts that
// do carry one; with none resolved the value is 0, not NaN.
func CalculateMetrics(code, secret, dependency []Alert) RepositoryMetrics {
	m := RepositoryMetrics{}
	var resolvedCount int
	var resolvedDays float64
	for _, alerts := range [][]Alert{code, secret, dependency} {
		for i := range alerts {
			a := &alerts[i]
			m.TotalAlerts++
			if a.State == AlertStateOpen || a.ResolvedAt == nil {
				m.OpenAlerts++
			}
			if a.ResolvedAt != nil {
				resolvedCount++
				resolvedDays += a.ResolvedAt.Sub(a.CreatedAt).Hours() / 24
			}
		}
	}
	m.ClosedAlerts = m.TotalAlerts - m.OpenAlerts
	if resolvedCount > 0 {
		m.MeanTimeToResolveDays = resolvedDays / float64(resolvedCount)
	}
	return m
}
