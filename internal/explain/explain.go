package explain

import (
	"fmt"
	"strings"

	"github.com/bayneri/slareport/internal/spec"
)

func Downtime() string {
	return `Uptime is decided one minute at a time over the reporting window.

Every minute gets a total request count and a bad request count. Some service types read failed requests directly from an error-labelled series; others read successful requests and treat the rest of the minute's total as failed.
A minute is down when bad / total is above the service type's error rate threshold. Minutes with fewer requests than the minimum per minute are skipped: they cannot be down, but they still count toward the window.

uptime = (evaluated minutes - downtime minutes) / evaluated minutes * 100
A service is compliant when its uptime is at or above the requested threshold.

Lower the error rate threshold only when a single bad minute should count against the SLA; raise the minimum requests per minute when low-traffic minutes produce noisy ratios.`
}

// ServiceTypes describes how every registered service type counts requests.
func ServiceTypes(registry *spec.Registry) string {
	var b strings.Builder
	for _, tpl := range registry.Templates() {
		fmt.Fprintf(&b, "%s\n", tpl.Type)
		fmt.Fprintf(&b, "  %s\n", tpl.Description)
		fmt.Fprintf(&b, "  total metric: %s\n", tpl.TotalMetric)
		fmt.Fprintf(&b, "  bad outcome: %s, error rate > %.4f, min %d req/min\n",
			tpl.BadOutcome.Mode(), tpl.ErrorRateThreshold, tpl.MinRequestsPerMinute)
	}
	return b.String()
}
