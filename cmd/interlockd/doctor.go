package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/interlock-api/interlock/internal/config"
	"github.com/interlock-api/interlock/internal/doctor"
	"github.com/interlock-api/interlock/internal/route"
)

// runDoctor inspects the static route table without starting the server or
// touching the network. Exit code 1 means the worst finding met the
// threshold.
func runDoctor(args []string) int {
	fs := flag.NewFlagSet("interlockd doctor", flag.ExitOnError)
	configDir := fs.String("config", "configs", "path to configuration directory")
	format := fs.String("format", "text", "output format: text or json")
	failOn := fs.String("fail-on", "", "severity threshold for non-zero exit (info, warning, error); overrides config")
	strict := fs.Bool("strict", false, "fail on warnings as well as errors")
	scope := fs.String("scope", "", "only inspect routes whose path has this prefix")
	fs.Parse(args)

	cfg := config.DefaultConfig()
	loader := config.NewLoader(*configDir, slog.Default())
	if err := loader.Load(); err != nil {
		// The doctor is useful before any config exists; fall back to
		// defaults and say so.
		fmt.Fprintf(os.Stderr, "note: using default config (%v)\n", err)
	} else {
		cfg = loader.Config()
	}

	threshold, err := resolveThreshold(*failOn, *strict, cfg.Doctor.FailOn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}

	// Static inspection only; no cache engine is wired.
	routes := buildRoutes(nil).Routes()
	if *scope != "" {
		routes = filterScope(routes, *scope)
	}

	findings := doctor.Run(routes, cfg.Errors.Envelope)

	switch *format {
	case "json":
		if err := doctor.WriteJSON(os.Stdout, findings); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 2
		}
	case "text":
		doctor.WriteText(os.Stdout, findings)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown format %q (use text or json)\n", *format)
		return 2
	}

	if doctor.Fail(findings, threshold) {
		return 1
	}
	return 0
}

func resolveThreshold(flagValue string, strict bool, configValue string) (doctor.Severity, error) {
	if flagValue != "" {
		return doctor.ParseSeverity(flagValue)
	}
	if strict {
		return doctor.SeverityWarning, nil
	}
	if configValue != "" {
		return doctor.ParseSeverity(configValue)
	}
	return doctor.SeverityError, nil
}

func filterScope(routes []*route.Route, prefix string) []*route.Route {
	out := routes[:0]
	for _, rt := range routes {
		if strings.HasPrefix(rt.Path, prefix) {
			out = append(out, rt)
		}
	}
	return out
}
