// Package doctor inspects the registered route table for deployment risks.
// It runs offline over static registrations, before traffic is served, and
// never participates in request handling.
package doctor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/interlock-api/interlock/internal/route"
)

// Severity orders findings from advisory to deploy-blocking.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity parses a threshold flag value.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (use info, warning or error)", s)
	}
}

// Finding is one diagnostic result. Findings are produced fresh on each run
// and never persisted.
type Finding struct {
	ID       string   `json:"id"`
	Severity Severity `json:"-"`
	Route    string   `json:"route"`
	Message  string   `json:"message"`
	Fix      string   `json:"fix"`
}

// Rule ids. Stable: they appear in reports and CI configurations.
const (
	RuleDuplicateRoute   = "ILK001"
	RuleWriteWithoutAuth = "ILK014"
	RuleEnvelopeDisabled = "ILK022"
	RuleSlowNoTimeout    = "ILK031"
	RuleGetWithoutCache  = "ILK042"
)

var writeMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "DELETE": true}

// slowTokens is the latency heuristic: route paths mentioning these are
// assumed to do heavy work and should carry a timeout.
var slowTokens = []string{"report", "export", "sync"}

// Run evaluates the fixed rule set over the registry snapshot. Output is
// ordered by rule id then route path, so repeated runs over the same table
// are byte-stable.
func Run(routes []*route.Route, envelopeEnabled bool) []Finding {
	var findings []Finding

	seen := make(map[string]bool)
	for _, rt := range routes {
		key := rt.Method + " " + rt.Path

		if seen[key] {
			findings = append(findings, Finding{
				ID:       RuleDuplicateRoute,
				Severity: SeverityError,
				Route:    rt.Name(),
				Message:  fmt.Sprintf("Duplicate route collision detected for %s.", key),
				Fix:      "Rename or move one of the colliding endpoints so each method+path pair is unique.",
			})
		}
		seen[key] = true

		if writeMethods[rt.Method] && (rt.Policies.Auth == nil || !rt.Policies.Auth.Enabled) {
			findings = append(findings, Finding{
				ID:       RuleWriteWithoutAuth,
				Severity: SeverityWarning,
				Route:    rt.Name(),
				Message:  "Write endpoint has no authentication policy.",
				Fix:      "Attach an enabled Auth policy, or an explicitly disabled one if the route is intentionally public.",
			})
		}

		if looksSlow(rt.Path) && rt.Policies.Timeout == nil {
			findings = append(findings, Finding{
				ID:       RuleSlowNoTimeout,
				Severity: SeverityWarning,
				Route:    rt.Name(),
				Message:  "Potentially slow endpoint has no timeout policy.",
				Fix:      "Attach a Timeout policy with an endpoint-appropriate maximum runtime.",
			})
		}

		if rt.Method == "GET" && rt.Policies.Cache == nil {
			findings = append(findings, Finding{
				ID:       RuleGetWithoutCache,
				Severity: SeverityInfo,
				Route:    rt.Name(),
				Message:  "GET endpoint does not declare a cache strategy.",
				Fix:      "Consider attaching a Cache policy where safe to reduce latency and server load.",
			})
		}
	}

	if !envelopeEnabled {
		findings = append(findings, Finding{
			ID:       RuleEnvelopeDisabled,
			Severity: SeverityWarning,
			Route:    "app",
			Message:  "Standard error envelope is disabled.",
			Fix:      "Enable errors.envelope to keep client-side error handling consistent.",
		})
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].ID != findings[j].ID {
			return findings[i].ID < findings[j].ID
		}
		return findings[i].Route < findings[j].Route
	})
	return findings
}

// Worst returns the highest severity present, or zero for a clean run.
func Worst(findings []Finding) Severity {
	var worst Severity
	for _, f := range findings {
		if f.Severity > worst {
			worst = f.Severity
		}
	}
	return worst
}

// Fail is the acceptance decision: the run fails when the worst finding
// meets or exceeds the threshold.
func Fail(findings []Finding, threshold Severity) bool {
	return Worst(findings) >= threshold
}

func looksSlow(path string) bool {
	lowered := strings.ToLower(path)
	for _, token := range slowTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}
