// Package version implements the semantic-version gate: requests declare a
// version via X-API-Version, routes declare a constraint, and the gate
// rejects incompatible pairs before any resource-consuming work runs.
package version

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/policy"
	"github.com/interlock-api/interlock/internal/semver"
	"github.com/interlock-api/interlock/internal/types"
)

// HeaderAPIVersion is the inbound version header.
const HeaderAPIVersion = "X-API-Version"

// Stage returns the pipeline stage for the route's version policy. strict
// is read per request so the application-level setting can be hot-reloaded.
func Stage(p *policy.Version, strict func() bool, route string) types.Stage {
	return func(next types.Handler) types.Handler {
		return func(ctx context.Context, req *types.Request) (*types.Response, error) {
			clientVersion := req.Header.Get(HeaderAPIVersion)

			if clientVersion == "" {
				if strict != nil && strict() {
					return nil, apierr.VersionRequired("")
				}
				// No header outside strict mode: unconstrained, pass.
				return annotate(next(ctx, req))(p, route)
			}

			v, err := semver.Parse(clientVersion)
			if err != nil {
				e := apierr.New(400, "version_invalid", fmt.Sprintf("Cannot parse API version %q", clientVersion))
				e.Details = []apierr.Detail{{
					Field:  HeaderAPIVersion,
					Source: "header",
					Issue:  err.Error(),
					Value:  clientVersion,
				}}
				return nil, e
			}

			if !p.Compiled.Check(v) {
				message := p.Message
				if message == "" {
					message = fmt.Sprintf("This endpoint requires API version %s", p.Constraint)
				}
				e := apierr.VersionUnsupported(message)
				e.Details = []apierr.Detail{{
					Field:  HeaderAPIVersion,
					Source: "header",
					Issue:  fmt.Sprintf("version %s does not satisfy %s", v, p.Compiled),
					Value:  clientVersion,
				}}
				return nil, e
			}

			return annotate(next(ctx, req))(p, route)
		}
	}
}

// annotate attaches the deprecation surface to a successful response:
// Deprecation marker, machine-readable removal date, replacement path, and
// advisory text.
func annotate(resp *types.Response, err error) func(*policy.Version, string) (*types.Response, error) {
	return func(p *policy.Version, route string) (*types.Response, error) {
		if err != nil || !p.Deprecated {
			return resp, err
		}
		resp.SetHeader("Deprecation", "true")
		if p.Sunset != "" {
			resp.SetHeader("Sunset", p.Sunset)
		}
		if p.Alternative != "" {
			resp.SetHeader("X-Deprecation-Alternative", p.Alternative)
		}
		if p.Message != "" {
			resp.SetHeader("X-Deprecation-Message", p.Message)
		}
		slog.Warn("deprecated endpoint invoked",
			"route", route,
			"sunset", p.Sunset,
			"alternative", p.Alternative,
		)
		return resp, nil
	}
}
